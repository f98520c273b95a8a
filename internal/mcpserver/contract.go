package mcpserver

// DocumentFormatContract describes the canonical document structure that
// LLM consumers should follow when creating or updating documents.
const DocumentFormatContract = `# Laguz Document Format Contract

Every document is a titled tree node with typed blocks.

## Structure

- ` + "`" + `type` + "`" + ` is ` + "`" + `note` + "`" + ` or ` + "`" + `folder` + "`" + `. Only folders can be parents.
- ` + "`" + `title` + "`" + ` is REQUIRED and is the primary display name everywhere.
- ` + "`" + `tags` + "`" + ` is an optional list used for filtering in saved views.
- ` + "`" + `props` + "`" + ` carries typed properties: ` + "`" + `status` + "`" + ` (todo|doing|done),
  ` + "`" + `priority` + "`" + ` (low|med|high), ` + "`" + `due` + "`" + ` / ` + "`" + `scheduled` + "`" + ` (YYYY-MM-DD),
  ` + "`" + `favorite` + "`" + ` (bool), plus free-form string extras.
- ` + "`" + `blocks` + "`" + ` is an ordered list of ` + "`" + `heading` + "`" + `, ` + "`" + `paragraph` + "`" + `, and
  ` + "`" + `checklist` + "`" + ` blocks.

## Checklist items

Checklist items become rows in the task index. Each item may carry:

- ` + "`" + `priority` + "`" + `: low | med | high
- ` + "`" + `due_day` + "`" + ` and ` + "`" + `scheduled_day` + "`" + `: YYYY-MM-DD
- ` + "`" + `next_action` + "`" + `: true marks it as a next action
- ` + "`" + `checked` + "`" + `: true maps to status ` + "`" + `done` + "`" + `

In Markdown source these are written inline: ` + "`" + `!high` + "`" + `, ` + "`" + `due:2026-03-02` + "`" + `,
` + "`" + `sched:2026-03-02` + "`" + `, ` + "`" + `@next` + "`" + `.

## Rules

1. Dates are ISO days (YYYY-MM-DD), never datetimes.
2. Trashed documents keep their content but vanish from every query surface.
3. Purge is permanent; only a tombstone (id, revision, purged_at) remains.
`
