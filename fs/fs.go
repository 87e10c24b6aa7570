package appfs

import "embed"

// FS holds the SQL migrations and the email templates.
// Templates are matched with a glob so the `_base.*` layouts are embedded too.
//go:embed migrations assets/templates/email/*
var FS embed.FS
