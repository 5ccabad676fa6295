package mcpserver

// PieceFormatContract describes how pieces are stored so that LLM consumers
// propose frontmatter the engines accept.
const PieceFormatContract = `# Luzzle Piece Format Contract

A piece is one Markdown file describing one thing (a book, a film, a game).
Its type decides which frontmatter fields exist; call ` + "`" + `get_schema` + "`" + ` for the
field list of a type before proposing values.

## File

` + "```" + `markdown
---
title: Dune                 # every type declares title
author: Frank Herbert
tags: [science-fiction, classic]
date_read: 2024-03-01
---

Free-form Markdown note about the piece.
` + "```" + `

- New files are named ` + "`" + `<dir>/<slug>.<type>.md` + "`" + `; the slug is derived from the title.
- Frontmatter keys follow the schema declaration order and are never invented:
  a key the schema does not declare is rejected.

## Values

1. **Strings** are plain YAML scalars.
2. **Integers and numbers** are YAML numbers; strings of digits are accepted as input.
3. **Booleans** accept true/false and also yes/no/on/off/1/0 as input.
4. **Dates** (format ` + "`" + `date` + "`" + `) are written as YYYY-MM-DD; human forms such as
   "March 1, 2024" are accepted as input.
5. **Arrays** append on every ` + "`" + `set_fields` + "`" + ` call. Comma-separated fields also accept
   one string such as "a, b, c".
6. **Attachments** (format ` + "`" + `asset` + "`" + `) take an http(s) URL or a base64 data URI.
   The file is downloaded and stored under ` + "`" + `.assets/<type>/<field>/` + "`" + `; the
   frontmatter keeps the root-relative path.
7. Required fields cannot be removed.

## Tools

- ` + "`" + `list_types` + "`" + `, ` + "`" + `get_schema` + "`" + ` to discover types and fields.
- ` + "`" + `create_piece` + "`" + ` to start a piece from a title, ` + "`" + `read_piece` + "`" + ` to inspect it.
- ` + "`" + `set_fields` + "`" + ` and ` + "`" + `remove_field` + "`" + ` to edit frontmatter. Every edit is validated
  against the schema before it is written.
- ` + "`" + `search_pieces` + "`" + ` for full-text search over titles and notes.
`
