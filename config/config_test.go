package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vector/vector-trip-scraper/config"
	"github.com/Vector/vector-trip-scraper/testcontainers"
)

var defaults = config.Knobs{MaxImages: 40, RelayWorkers: 5, HeaderImages: 5}

func TestKnobsWithoutDatabase(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want config.Knobs
	}{
		{
			name: "[success scenario] - defaults",
			want: defaults,
		},
		{
			name: "[success scenario] - env overrides",
			env:  map[string]string{"RELAY_MAX_IMAGES": "12", "SCRAPE_HEADER_IMAGES": "3"},
			want: config.Knobs{MaxImages: 12, RelayWorkers: 5, HeaderImages: 3},
		},
		{
			name: "[success scenario] - unparsable env falls back",
			env:  map[string]string{"RELAY_WORKERS": "many"},
			want: defaults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := config.New(nil).Knobs(context.Background(), defaults)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceWithDatabase(t *testing.T) {
	tc := testcontainers.New(t, testcontainers.WithPostgres())
	ctx := context.Background()

	svc := config.New(tc.DB)

	t.Run("[success scenario] - seeded knobs", func(t *testing.T) {
		got, err := svc.Knobs(ctx, config.Knobs{})
		require.NoError(t, err)
		assert.Equal(t, defaults, got)
	})

	t.Run("[success scenario] - values are clamped", func(t *testing.T) {
		require.NoError(t, svc.Upsert(ctx, config.KeyRelayWorkers, "500", "int", "workers"))

		got, err := svc.GetInt(ctx, config.KeyRelayWorkers, 5)
		require.NoError(t, err)
		assert.Equal(t, 20, got)
	})

	t.Run("[success scenario] - missing keys use the default", func(t *testing.T) {
		got, err := svc.GetString(ctx, "does.not.exist", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", got)

		_, err = svc.GetRequiredString(ctx, "does.not.exist")
		assert.Error(t, err)
	})
}
