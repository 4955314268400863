package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var qualities = []string{
	"Kind", "Steady", "Bright", "Helpful", "Brave",
	"Patient", "Cheerful", "Loyal", "Gentle", "Eager",
}

var roles = []string{
	"Neighbor", "Volunteer", "Helper", "Gardener", "Builder",
	"Organizer", "Runner", "Planter", "Mentor", "Steward",
}

// GenerateNickname returns a random display name such as "Kind_Gardener_0421",
// used for participants whose identity record carries no nickname.
func GenerateNickname() (string, error) {
	quality, err := pick(qualities)
	if err != nil {
		return "", err
	}
	role, err := pick(roles)
	if err != nil {
		return "", err
	}

	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}

	return fmt.Sprintf("%s_%s_%04d", quality, role, suffix.Int64()), nil
}

func pick(words []string) (string, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("failed to pick word: %w", err)
	}
	return words[idx.Int64()], nil
}
