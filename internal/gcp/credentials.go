// Package gcp resolves Google Cloud credentials from the environment for the
// Vision, Document AI and Sheets clients.
//
// Inline JSON in GOOGLE_CREDENTIALS wins over a key file named by
// GOOGLE_APPLICATION_CREDENTIALS. With neither set, the client libraries fall
// back to Application Default Credentials.
package gcp

import (
	"errors"
	"fmt"
	"os"

	"google.golang.org/api/option"
)

// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
// nor GOOGLE_CREDENTIALS is configured and a caller needs explicit key material.
var ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

// HasExplicitCredentials reports whether key material is configured in the environment.
func HasExplicitCredentials() bool {
	return os.Getenv("GOOGLE_CREDENTIALS") != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
}

// ClientOptions returns the credential option from the environment followed by extra.
func ClientOptions(extra ...option.ClientOption) []option.ClientOption {
	var opts []option.ClientOption
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}
	return append(opts, extra...)
}

// CredentialsJSON returns the raw service account key, for clients that need
// to build their own token source.
func CredentialsJSON() ([]byte, error) {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []byte(credJSON), nil
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		data, err := os.ReadFile(credFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return data, nil
	}
	return nil, ErrMissingCredentials
}

// RegionalEndpoint returns the endpoint option for a Google API served per
// region (service "documentai" → "eu-documentai.googleapis.com:443"), or
// nil for the default "us" location.
func RegionalEndpoint(service, location string) []option.ClientOption {
	if location == "" || location == "us" {
		return nil
	}
	return []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-%s.googleapis.com:443", location, service))}
}
