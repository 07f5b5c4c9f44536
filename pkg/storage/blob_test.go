package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConnectionString = "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net"

func TestNewAzureBlobClient(t *testing.T) {
	tests := []struct {
		name             string
		connectionString string
		containerName    string
		errContains      string
	}{
		{
			name:          "empty connection string",
			containerName: "results",
			errContains:   "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: testConnectionString,
			errContains:      "container name is required",
		},
		{
			name:             "missing account key",
			connectionString: "AccountName=test",
			containerName:    "results",
			errContains:      "account name and key are required",
		},
		{
			name:             "valid connection string",
			connectionString: testConnectionString,
			containerName:    "results",
		},
		{
			name:             "development storage",
			connectionString: "UseDevelopmentStorage=true",
			containerName:    "results",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewAzureBlobClient(tt.connectionString, tt.containerName, nil)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Nil(t, client)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString(" AccountName=acct ; AccountKey=a2V5PT0=;;BlobEndpoint=http://localhost:10000/acct;junk")

	assert.Equal(t, "acct", params["AccountName"])
	assert.Equal(t, "a2V5PT0=", params["AccountKey"])
	assert.Equal(t, "http://localhost:10000/acct", params["BlobEndpoint"])
	assert.NotContains(t, params, "junk")
}

func TestDevelopmentStorage(t *testing.T) {
	params := developmentStorage(map[string]string{"UseDevelopmentStorage": "true"})
	assert.Equal(t, devAccountName, params["AccountName"])
	assert.Equal(t, devBlobURL, params["BlobEndpoint"])

	params = developmentStorage(map[string]string{"DevelopmentStorageProxyUri": "http://azurite/"})
	assert.Equal(t, "http://azurite:10000/devstoreaccount1", params["BlobEndpoint"])
}

func TestExtractBlobPath(t *testing.T) {
	client, err := NewAzureBlobClient("UseDevelopmentStorage=true", "results", nil)
	require.NoError(t, err)

	tests := []struct {
		reference string
		want      string
		wantErr   bool
	}{
		{reference: "results/op/2026/01/02/id.json", want: "results/op/2026/01/02/id.json"},
		{reference: "/results/results/op/id.json", want: "results/op/id.json"},
		{reference: devBlobURL + "/results/op/2026/01/02/id.json?sig=abc", want: "op/2026/01/02/id.json"},
		{reference: "/results/op%20name/id.json", want: "op name/id.json"},
		{reference: "   ", wantErr: true},
		{reference: "/results/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			got, err := client.extractBlobPath(tt.reference)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
