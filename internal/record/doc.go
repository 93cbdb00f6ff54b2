// Package record models the structured clinical record and projects its
// sections to and from editable plain text.
//
// Every section has a fixed JSON key (motivo_consulta, examen_fisico, ...)
// and a projection kind. ToText renders a section for editing and FromText
// parses edited text back into that section alone; unparseable lines are
// dropped rather than reported. The package also holds the free-text
// compaction used for the present illness, the additive patient merge,
// encounter identifiers and the archive document layout.
package record
