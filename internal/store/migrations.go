package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
// Timestamps are stored as RFC3339 text so rows round-trip unchanged to
// the transformers.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS service_requests (
	id          TEXT PRIMARY KEY,
	guest_id    TEXT NOT NULL DEFAULT '',
	room_number TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT 'other',
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'in_progress', 'completed', 'cancelled')),
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS table_reservations (
	id               TEXT PRIMARY KEY,
	guest_id         TEXT NOT NULL DEFAULT '',
	room_number      TEXT NOT NULL DEFAULT '',
	restaurant_name  TEXT NOT NULL DEFAULT '',
	reservation_date TEXT NOT NULL DEFAULT '',
	reservation_time TEXT NOT NULL DEFAULT '',
	guest_count      INTEGER NOT NULL DEFAULT 1,
	special_requests TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'confirmed', 'completed', 'cancelled')),
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS spa_bookings (
	id           TEXT PRIMARY KEY,
	guest_id     TEXT NOT NULL DEFAULT '',
	room_number  TEXT NOT NULL DEFAULT '',
	service_name TEXT NOT NULL DEFAULT '',
	booking_date TEXT NOT NULL DEFAULT '',
	booking_time TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'confirmed', 'completed', 'cancelled')),
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_reservations (
	id          TEXT PRIMARY KEY,
	guest_id    TEXT NOT NULL DEFAULT '',
	room_number TEXT NOT NULL DEFAULT '',
	event_title TEXT NOT NULL DEFAULT '',
	event_date  TEXT NOT NULL DEFAULT '',
	guest_count INTEGER NOT NULL DEFAULT 1,
	status      TEXT NOT NULL DEFAULT 'pending'
		CHECK(status IN ('pending', 'confirmed', 'completed', 'cancelled')),
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id          TEXT PRIMARY KEY,
	guest_id    TEXT NOT NULL DEFAULT '',
	room_number TEXT NOT NULL DEFAULT '',
	sender_type TEXT NOT NULL DEFAULT 'staff' CHECK(sender_type IN ('guest', 'staff')),
	content     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'sent' CHECK(status IN ('sent', 'read')),
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_service_requests_guest ON service_requests(guest_id);
CREATE INDEX IF NOT EXISTS idx_service_requests_room ON service_requests(room_number);
CREATE INDEX IF NOT EXISTS idx_table_reservations_guest ON table_reservations(guest_id);
CREATE INDEX IF NOT EXISTS idx_table_reservations_room ON table_reservations(room_number);
CREATE INDEX IF NOT EXISTS idx_spa_bookings_guest ON spa_bookings(guest_id);
CREATE INDEX IF NOT EXISTS idx_spa_bookings_room ON spa_bookings(room_number);
CREATE INDEX IF NOT EXISTS idx_event_reservations_guest ON event_reservations(guest_id);
CREATE INDEX IF NOT EXISTS idx_event_reservations_room ON event_reservations(room_number);
CREATE INDEX IF NOT EXISTS idx_chat_messages_guest ON chat_messages(guest_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_number);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_service_requests_created ON service_requests(created_at);
CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
