// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// KeyDisplayName is the display name of the Maps key looked up through ADC.
const KeyDisplayName = "Nemchi Places Key"

// APIKeyEnv is the environment variable holding the Maps API key.
const APIKeyEnv = "GOOGLE_MAPS_API_KEY"

var lookupADC = APIKeyFromADC

// ResolveAPIKey returns explicit when set, then the APIKeyEnv variable, and
// finally asks the API Keys service through Application Default Credentials.
func ResolveAPIKey(ctx context.Context, explicit, projectID string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}

	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}

	log.Printf("%s is not set. Attempting to retrieve via ADC...", APIKeyEnv)

	key, err := lookupADC(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMissingAPIKey, err)
	}

	log.Println("✅ Retrieved Google Maps API key via ADC")

	return key, nil
}

// APIKeyFromADC finds the key named KeyDisplayName in projectID, or in the
// project of the default credentials when projectID is empty.
func APIKeyFromADC(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return "", fmt.Errorf("finding default credentials: %w", err)
		}

		projectID = creds.ProjectID
		if projectID == "" {
			return "", errors.New("no project id in default credentials")
		}
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != KeyDisplayName {
			continue
		}

		// ListKeys redacts the secret.
		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key %q has an empty key string", key.Name)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name %q not found in project %s", KeyDisplayName, projectID)
}
