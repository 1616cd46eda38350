// Package domain models WHO outbreak event data and the rules that turn loosely
// structured spreadsheet rows into canonical events.
//
// # Data Source
//
// Events come from a periodically republished workbook of graded health
// emergencies (WHO AFRO weekly bulletin style). The workbook may be an XLSX
// download, a Google Sheets export, or a "publish to web" CSV. Column naming is
// not stable between editions, so every field is resolved through an ordered
// alias list (see [FieldAliases]).
//
// # Conventions
//
// Grade:
//
//	WHO emergency grading is reported as free text: "Grade 3", "G2",
//	"Grade three", "Ungraded", "Pending". Classification scans for the digit or
//	English number word, checking 3 before 2 before 1, then the ungraded
//	synonyms. Text matching nothing is passed through unchanged (see
//	[ClassifyGrade]).
//
// Protracted events:
//
//	A separate "Protracted" column marks long-running emergencies with a level
//	1-3. When present it overrides the event type as "Protracted-<n>"; the bare
//	word with no level means level 1.
//
// Numbers:
//
//	Cases, deaths and coordinates are parsed permissively: thousands separators
//	are dropped and the leading numeric prefix is used ("1,234 suspected" -> 1234).
//	Anything unparsable is 0 (see [ParseFloatOr]).
//
// Dates:
//
//	Report dates arrive as ISO dates, US slash dates, spreadsheet display formats
//	or raw Excel serial day numbers. They are stored as YYYY-MM-DD. A missing or
//	unparsable date means "today" for the ingestion run.
//
// # ID Generation
//
// Rows carrying an id column keep it. Rows without one get "event-<n>" where n is
// a counter local to one ingestion run and shared across all sheets of the
// workbook, so ids are unique within a sync cycle but not stable across cycles.
package domain
