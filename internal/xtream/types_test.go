package xtream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fricwalter/kanalista4.0/internal/models"
)

func TestFlexIntTolerance(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`42`, 42},
		{`"42"`, 42},
		{`4.9`, 4},
		{`"4.9"`, 4},
		{`""`, 0},
		{`null`, 0},
		{`"n/a"`, 0},
	}
	for _, tt := range tests {
		var v FlexInt
		require.NoError(t, json.Unmarshal([]byte(tt.in), &v), "input %s", tt.in)
		assert.Equal(t, tt.want, int64(v), "input %s", tt.in)
	}
}

func TestFlexStringTolerance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"hd"`, "hd"},
		{`7`, "7"},
		{`4.5`, "4.5"},
		{`true`, "true"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var v FlexString
		require.NoError(t, json.Unmarshal([]byte(tt.in), &v), "input %s", tt.in)
		assert.Equal(t, tt.want, string(v), "input %s", tt.in)
	}
}

func TestNormalize(t *testing.T) {
	live := NormalizeLive(Stream{StreamID: 10, Name: "Eins", StreamIcon: "i.png", CategoryID: "3"})
	assert.Equal(t, Item{ID: 10, Name: "Eins", Type: models.ContentLive, Icon: "i.png", CategoryID: "3", Extension: "m3u8"}, live)

	vod := NormalizeVod(Stream{StreamID: 11, Name: "Film", ContainerExtension: "mkv"})
	assert.Equal(t, "mkv", vod.Extension)
	assert.Equal(t, models.ContentVod, vod.Type)

	vodDefault := NormalizeVod(Stream{StreamID: 12})
	assert.Equal(t, "m3u8", vodDefault.Extension)

	series := NormalizeSeries(Series{SeriesID: 13, Name: "Show", Cover: "c.png", CategoryID: "9"})
	assert.Equal(t, int64(13), series.ID)
	assert.Equal(t, models.ContentSeries, series.Type)
	assert.Empty(t, series.Extension)
}
