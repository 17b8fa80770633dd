package models

import "time"

type KeySlot string

const (
	KeySlotPrimary   KeySlot = "primary"
	KeySlotSecondary KeySlot = "secondary"
)

var KeySlots = []KeySlot{KeySlotPrimary, KeySlotSecondary}

func ParseKeySlot(raw string) (KeySlot, bool) {
	switch KeySlot(raw) {
	case KeySlotPrimary:
		return KeySlotPrimary, true
	case KeySlotSecondary:
		return KeySlotSecondary, true
	}
	return "", false
}

// APIKeySlot is one of the two key holders of an account. An empty slot has
// no hash, is inactive and carries no key timestamps. CooldownFrom is the
// last generation time used for the cooldown; it survives revoke and is never
// exposed.
type APIKeySlot struct {
	AccountID       string
	Slot            KeySlot
	KeyHash         *string
	KeyPrefix       *string
	IsActive        bool
	CreatedAt       *time.Time
	LastUsedAt      *time.Time
	LastGeneratedAt *time.Time
	CooldownFrom    *time.Time
}

func (s APIKeySlot) Empty() bool {
	return s.KeyHash == nil
}
