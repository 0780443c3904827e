package mcpserver

// ItemFormatContract describes the Markdown item format that LLM consumers
// should follow when creating items.
const ItemFormatContract = `# Sitefeed Item Format Contract

Every item is one Markdown file. Its absolute path is derived from the file
name: ` + "`" + `news/launch.md` + "`" + ` is ` + "`" + `/news/launch` + "`" + `, a container's own metadata lives in
` + "`" + `news/_index.md` + "`" + ` and is ` + "`" + `/news` + "`" + `.

## Structure

` + "```" + `markdown
---
format: news                 # OPTIONAL – defaults to webpage (folder for _index.md)
title: Human-readable title  # RECOMMENDED – falls back to the first heading
state: public                # OPTIONAL – public (default) or private
owner: alice                 # OPTIONAL – may edit and see the item when private
tags: [release, go]          # OPTIONAL – YAML list, also #hashtags in the body
pub_datetime: 2025-01-15     # OPTIONAL – ISO-8601 date or datetime
description: One line        # OPTIONAL – used as the preview
thumbnail: /images/a.png     # OPTIONAL
capability: side             # box formats only – side, content or empty for both
---

Body text in standard Markdown.
` + "```" + `

## Formats

- **section** is a container; it may hold section, webpage, news, image, photo and file items.
- **webpage**, **news**, **image**, **photo**, **file** are content items.
- **tag** items live under the tags folder and give a tag its title.
- **box-html**, **box-tags**, **box-news** are boxes shown in a side or content bar.
  A box-tags item reads max_tags, show_count, random and formats from its frontmatter;
  a box-news item reads container.

## Rules

1. **Names** have no slashes, do not start with a dot or underscore, and carry no ` + "`" + `.md` + "`" + ` suffix.
2. The **format** must be allowed in the target container.
3. New items are appended to the container's order; boxes to its side or content bar.
4. **Encoding** is UTF-8 with a trailing newline.

## Example

` + "```" + `markdown
---
format: news
title: Version 2 released
tags: [release]
pub_datetime: 2025-01-20
---

We shipped version 2.
` + "```" + `
`
