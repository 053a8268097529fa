// Package schemas embeds the JSON schemas of the request bodies
package schemas

import "embed"

// FS holds the top level schemas and their refs
//
//go:embed *.json refs/*.json
var FS embed.FS

// schema ids
const (
	Content     = "https://wedcards.example/content.json"
	Payload     = "https://wedcards.example/payload.json"
	Bulk        = "https://wedcards.example/bulk.json"
	Order       = "https://wedcards.example/order.json"
	Move        = "https://wedcards.example/move.json"
	Clone       = "https://wedcards.example/clone.json"
	Command     = "https://wedcards.example/command.json"
	Form        = "https://wedcards.example/form.json"
	Invitations = "https://wedcards.example/invitations.json"
	Response    = "https://wedcards.example/response.json"
)
