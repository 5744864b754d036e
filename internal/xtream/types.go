package xtream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/fricwalter/kanalista4.0/internal/models"
)

// Xtream panels are wildly inconsistent about scalar types: the same field
// arrives as 123 from one provider and "123" from the next. FlexInt and
// FlexString accept both and re-marshal in a stable form.

// FlexInt decodes a JSON number or a numeric string into an int64.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Some panels emit floats ("4.0") for count fields.
		fl, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			*f = 0
			return nil
		}
		n = int64(fl)
	}
	*f = FlexInt(n)
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(f), 10)), nil
}

// FlexString decodes a JSON string, number, or bool into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(strings.Trim(string(data), `"`))
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// UserInfo is the account block returned by a bare player_api.php call.
type UserInfo struct {
	UserID         FlexInt    `json:"user_id,omitempty"`
	Username       string     `json:"username"`
	Password       string     `json:"password"`
	Message        string     `json:"message"`
	Auth           FlexInt    `json:"auth"`
	Status         string     `json:"status"`
	ExpDate        FlexString `json:"exp_date"`
	IsTrial        FlexString `json:"is_trial"`
	ActiveCons     FlexString `json:"active_cons"`
	CreatedAt      FlexString `json:"created_at"`
	MaxConnections FlexString `json:"max_connections"`
}

// Category is one entry of a get_*_categories listing, in upstream order.
type Category struct {
	CategoryID   FlexString `json:"category_id"`
	CategoryName string     `json:"category_name"`
	ParentID     FlexInt    `json:"parent_id,omitempty"`
}

// Stream is one live or VOD listing entry. Identity is StreamID, unique
// within one credential+type scope only.
type Stream struct {
	Num                FlexInt    `json:"num"`
	Name               string     `json:"name"`
	StreamID           FlexInt    `json:"stream_id"`
	StreamType         string     `json:"stream_type"`
	StreamIcon         string     `json:"stream_icon"`
	Rating             FlexString `json:"rating"`
	RatingCount        FlexInt    `json:"rating_count,omitempty"`
	Added              FlexString `json:"added"`
	CategoryID         FlexString `json:"category_id"`
	CustomSID          FlexString `json:"custom_sid,omitempty"`
	ContainerExtension string     `json:"container_extension,omitempty"`
	DirectSource       string     `json:"direct_source,omitempty"`
	TVArchive          FlexInt    `json:"tv_archive,omitempty"`
	EPGChannelID       FlexString `json:"epg_channel_id,omitempty"`
}

// Series is one get_series listing entry. Identity is SeriesID.
type Series struct {
	SeriesID       FlexInt         `json:"series_id"`
	Name           string          `json:"name"`
	Cover          string          `json:"cover"`
	Plot           string          `json:"plot"`
	Cast           string          `json:"cast"`
	Director       string          `json:"director"`
	Genre          string          `json:"genre"`
	ReleaseDate    FlexString      `json:"releaseDate"`
	Rating         FlexString      `json:"rating"`
	RatingCount    FlexInt         `json:"rating_count,omitempty"`
	BackdropPath   json.RawMessage `json:"backdrop_path,omitempty"`
	YoutubeTrailer FlexString      `json:"youtube_trailer,omitempty"`
	EpisodeRunTime FlexString      `json:"episode_run_time,omitempty"`
	CategoryID     FlexString      `json:"category_id"`
	LastModified   FlexString      `json:"last_modified,omitempty"`
}

// Item is the normalized view over the three listing variants. Each
// variant carries its identity in a differently named field (stream_id
// vs series_id); Item gives callers a single shape to work with.
type Item struct {
	ID         int64
	Name       string
	Type       models.ContentType
	Icon       string
	CategoryID string
	Extension  string // container extension for building stream URLs; empty for series
}

// NormalizeLive converts a live Stream. Live streams play as HLS,
// so the extension defaults to m3u8.
func NormalizeLive(s Stream) Item {
	return Item{
		ID:         int64(s.StreamID),
		Name:       s.Name,
		Type:       models.ContentLive,
		Icon:       s.StreamIcon,
		CategoryID: string(s.CategoryID),
		Extension:  DefaultExtension,
	}
}

// NormalizeVod converts a VOD Stream, keeping its container extension.
func NormalizeVod(s Stream) Item {
	ext := s.ContainerExtension
	if ext == "" {
		ext = DefaultExtension
	}
	return Item{
		ID:         int64(s.StreamID),
		Name:       s.Name,
		Type:       models.ContentVod,
		Icon:       s.StreamIcon,
		CategoryID: string(s.CategoryID),
		Extension:  ext,
	}
}

// NormalizeSeries converts a Series entry. Series are browsed through
// get_series_info, not played directly, so no extension applies.
func NormalizeSeries(s Series) Item {
	return Item{
		ID:         int64(s.SeriesID),
		Name:       s.Name,
		Type:       models.ContentSeries,
		Icon:       s.Cover,
		CategoryID: string(s.CategoryID),
	}
}
