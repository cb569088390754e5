package mcpserver

// LabelFormatContract describes how labeled copies are named and how the
// label fields of each layout are combined.
const LabelFormatContract = `# Label Format

Saving a label copies the dataset image into the labeled directory under a
new name. The original file is never modified.

## File names

` + "```" + `
<index>_<text><ext>
` + "```" + `

- ` + "`index`" + ` is the 1-based position of the image in the cursor file.
- ` + "`text`" + ` is the label; it must be non-empty and must not contain ` + "`/`" + `,
  ` + "`\\`" + ` or ` + "`..`" + `.
- ` + "`ext`" + ` is the extension of the source image (` + "`.jpg`" + `, ` + "`.jpeg`" + ` or ` + "`.png`" + `).

## Layouts

- **ocr**: the label is ` + "`text_01`" + ` as entered.
- **plate**: the label is ` + "`text_01 + text_02 + text_03`" + `. The fields are
  pre-filled from the part of the source filename after the last underscore:
  two characters, one character, then the rest.

## Saving

Pass the ` + "`index`" + ` returned by ` + "`next_image`" + ` to ` + "`save_label`" + `. Several
labelers may share a cursor, so the label always goes to the image with that
index, never to whatever the cursor points at when the save arrives. An index
that is not in the cursor file is rejected.

## Limits

Labels longer than the configured maximum (15 characters by default) are
rejected and the cursor does not move. The min/max lengths stored in the
cursor file are hints for the labeling form only.
`
