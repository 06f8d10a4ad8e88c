/*
Package jinja implements Quire's template processor for Jinja-style HTML files,
built on github.com/nikolalohinski/gonja.

# Preparing

Prepare parses a source file and records, in the site's stores:

  - the target file it generates (none for template-only files),
  - the templates it references through static extends, include, import and
    from statements,
  - the contexts it publishes with the setcontext tag,
  - the contexts it looks up with getcontexts.

The parsed template is kept until Generate renders it, so every source in a
build is prepared before any of them is rendered.

# Template syntax

The setcontext tag publishes a value and assigns it like set:

	{% setcontext tag = "go" %}

Other files list the publishers of a context with getcontexts. Each result has
the publisher's url (when it generates exactly one file), urls, size, modified
and every context it set:

	{% for post in getcontexts("tag", "go") %}
	  <a href="{{ post.url }}">{{ post.title }}</a>
	{% endfor %}

Only calls whose two arguments are literals are tracked as dependencies, so a
page listing posts is rebuilt when a post's contexts change.

Files that set template_only to a truthy literal produce no output:

	{% set template_only = true %}

Besides the gonja builtins, templates can use the sanitize filter, which runs
author data through bluemonday's UGC policy, plus naturaltime ("3 days ago")
and ordinal ("2nd") from go-humanize. The kebabcase, snakecase, camelcase,
initials, swapcase and abbrev filters come from sprig:

	<a id="{{ title|kebabcase }}">{{ summary|abbrev(80) }}</a>
*/
package jinja
