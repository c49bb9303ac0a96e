package sqlite

// Params holds SQLite-specific configuration.
// Parsed from core.AdapterConfig.Params using mapstructure.
type Params struct {
	// BusyTimeout is how long to wait on a locked database, in milliseconds.
	BusyTimeout int `mapstructure:"busy_timeout"`

	// Pragmas are applied after connecting, e.g. "journal_mode=WAL".
	Pragmas []string `mapstructure:"pragmas"`
}

const defaultBusyTimeout = 5000
