package redis

import "log/slog"

// Shared slog attribute constructors.

func slogJobID(id string) slog.Attr { return slog.String("job_id", id) }

func slogUser(userID string) slog.Attr { return slog.String("user_id", userID) }

func slogErr(err error) slog.Attr { return slog.String("error", err.Error()) }
