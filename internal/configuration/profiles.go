package configuration

import (
	"fmt"

	"authflow/internal/models"

	"go.uber.org/zap"
)

const (
	ProfileClient = "client"
	ProfileStub   = "stub"
)

// Profiles defines all available run profiles.
var Profiles = map[string]models.Profile{
	ProfileClient: {
		Name:    ProfileClient,
		Console: true,
	},
	ProfileStub: {
		Name:       ProfileStub,
		StubServer: true,
	},
}

// LookupProfile returns the profile by name. An empty name selects the client profile.
func LookupProfile(name string) (models.Profile, error) {
	if name == "" {
		name = ProfileClient
	}

	profile, ok := Profiles[name]
	if !ok {
		return models.Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return profile, nil
}

// GetProfile is LookupProfile for process startup: unknown names are fatal.
func GetProfile(name string) models.Profile {
	profile, err := LookupProfile(name)
	if err != nil {
		zap.L().Fatal("Unknown profile",
			zap.String("profile", name),
			zap.Strings("available_profiles", []string{ProfileClient, ProfileStub}))
	}

	zap.L().Info("Loaded profile", zap.String("profile", profile.Name))

	return profile
}
