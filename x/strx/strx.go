package strx

// Coalesce picks s unless it is empty, in which case fallback is used.
// Handy for optional config fields with a built-in default.
func Coalesce(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
