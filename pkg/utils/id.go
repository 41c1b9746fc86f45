package utils

import "github.com/google/uuid"

// GenerateID returns a random id of the form "<prefix>_<uuid>".
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
