package database

import (
	"testing"

	"sameem/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		env     string
		allow   bool
		runSQL  bool
		runAuto bool
		wantErr bool
	}{
		{name: "hybrid dev", mode: "hybrid", env: "development", runSQL: true, runAuto: true},
		{name: "hybrid prod", mode: "hybrid", env: "production", runSQL: true, runAuto: false},
		{name: "default is hybrid", mode: "", env: "development", runSQL: true, runAuto: true},
		{name: "sql only", mode: "sql", env: "production", runSQL: true, runAuto: false},
		{name: "auto dev", mode: "auto", env: "development", runSQL: false, runAuto: true},
		{name: "auto prod refused", mode: "auto", env: "production", wantErr: true},
		{name: "auto prod with override", mode: "auto", env: "production", allow: true, runSQL: false, runAuto: true},
		{name: "unknown mode", mode: "yolo", env: "development", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				DBSchemaMode:                  tt.mode,
				Env:                           tt.env,
				DBAutoMigrateAllowDestructive: tt.allow,
			}
			runSQL, runAuto, err := schemaPolicy(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, runSQL)
			assert.Equal(t, tt.runAuto, runAuto)
		})
	}
}

func TestRegisteredMigrationsOrdered(t *testing.T) {
	ms := GetMigrations()
	require.NotEmpty(t, ms)
	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].Version, ms[i].Version)
	}
	for _, m := range ms {
		assert.NotEmpty(t, m.UpScript)
		assert.NotEmpty(t, m.DownScript)
	}
}
