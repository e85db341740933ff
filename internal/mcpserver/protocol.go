package mcpserver

// ProtocolURI is the resource URI of MemoryProtocol.
const ProtocolURI = "noosphere://protocol"

// MemoryProtocol describes how LLM consumers should read from and write to
// a project's working memory.
const MemoryProtocol = `# Noosphere Memory Protocol

Noosphere keeps two kinds of memory per project:

1. **State document**: a living set of facts grouped into sections. It is
   rewritten in place and always reflects the current truth.
2. **Entries**: an append-only log of session notes. Entries are never
   edited; write a new one instead.

## Reading

- Call ` + "`browse`" + ` without arguments to list your projects.
- Call ` + "`browse`" + ` with a ` + "`project_id`" + ` at the start of every session. You get
  the state document followed by the most recent entries grouped into
  Key Decisions, Recent Activity, Under Consideration and Other Entries.
- Call ` + "`search`" + ` with one or more keywords to find older entries. Any keyword
  may match; results are ranked and capped at 20.
- Call ` + "`read`" + ` with an ` + "`entry_id`" + ` (and optionally a ` + "`section`" + `) for full text.

## Writing

Call ` + "`push`" + ` when you finish significant work, make a decision, or end the
session. A push may carry an entry, state deltas, or both:

` + "```" + `json
{
  "project_id": "acme/api",
  "title": "Switched storage to SQLite",
  "type": "session",
  "source_tool": "cursor",
  "tags": ["storage"],
  "sections": {
    "Context": "Postgres was too heavy for local use.",
    "Decision": "We decided on SQLite with WAL.",
    "Next Steps": "Port the migrations."
  },
  "state_deltas": [
    {"section": "Active Decisions", "key": "storage", "value": "SQLite (WAL)"},
    {"section": "Recent Activity", "add": "Moved storage to SQLite"}
  ]
}
` + "```" + `

- The entry is written only when both ` + "`title`" + ` and ` + "`sections`" + ` are given.
  Sections are stored in heading order.
- ` + "`type`" + ` is ` + "`session`" + ` (default) or ` + "`foundational`" + ` for long-lived context;
  ` + "`source_tool`" + ` names the writer and ` + "`tags`" + ` label the entry.
- A delta with ` + "`key`" + ` and ` + "`value`" + ` replaces that fact; both are required.
- A delta with ` + "`add`" + ` appends a list item and never overwrites.
- The whole push is validated before anything is written.

## Canonical sections

Sections render in this order, followed by any other section alphabetically:

1. Summary (keep a single ` + "`text`" + ` key; it is shown in project listings)
2. Current Architecture
3. Active Decisions
4. Current State
5. Recent Activity
6. Continuation Hints

## Writing entries that classify well

Entries are grouped by the language of their sections (titles do not count):

- Decisive wording ("decided", "going with", "confirmed", "rejected") lands
  under Key Decisions.
- Tentative wording ("might", "considering", "what if", "trade-off") lands
  under Under Consideration.
- "in progress", "next step" and "continuation" land under Recent Activity.
`
