// Package db embeds the SQL schema applied by the server at startup.
package db

import _ "embed"

// Schema holds the storefront DDL: categories, products, carts, orders,
// discount rules and API keys.
//
//go:embed migrations/001_schema.sql
var Schema string
