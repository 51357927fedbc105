// Package db provides embedded database schema and migration files.
package db

import _ "embed"

// Schema contains the DDL for the payment and order tables: users, addresses,
// cart_items, payments (JSONB snapshot and method state), orders and
// order_items.
//
//go:embed migrations/001_schema.sql
var Schema string
