package ids

import "github.com/segmentio/ksuid"

// New returns a K-sortable unique id.
func New() string {
	return ksuid.New().String()
}

func Valid(id string) bool {
	_, err := ksuid.Parse(id)
	return err == nil
}
