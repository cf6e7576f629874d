package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMemoryType(t *testing.T) {
	types := []MemoryType{
		{PropertyFlags: MemoryPropertyHostVisible | MemoryPropertyHostCoherent},
		{PropertyFlags: MemoryPropertyDeviceLocal},
		{PropertyFlags: MemoryPropertyDeviceLocal | MemoryPropertyHostVisible},
	}

	tests := []struct {
		name     string
		typeBits uint32
		required MemoryPropertyFlags
		want     uint32
		wantErr  bool
	}{
		{name: "first fit device local", typeBits: 0b111, required: MemoryPropertyDeviceLocal, want: 1},
		{name: "type bits exclude first match", typeBits: 0b101, required: MemoryPropertyDeviceLocal, want: 2},
		{name: "host visible", typeBits: 0b111, required: MemoryPropertyHostVisible, want: 0},
		{name: "combined flags", typeBits: 0b111, required: MemoryPropertyDeviceLocal | MemoryPropertyHostVisible, want: 2},
		{name: "no allowed type carries flag", typeBits: 0b001, required: MemoryPropertyDeviceLocal, wantErr: true},
		{name: "no type bits", typeBits: 0, required: MemoryPropertyDeviceLocal, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindMemoryType(tt.typeBits, types, tt.required)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoMemoryType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindMemoryTypeEmptyTable(t *testing.T) {
	_, err := FindMemoryType(0xffffffff, nil, MemoryPropertyDeviceLocal)
	assert.ErrorIs(t, err, ErrNoMemoryType)
}
