package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayKey(t *testing.T) {
	assert.Equal(t, "replays/evt/sess.mp4", ReplayKey("evt", "sess"))
}

func TestPresignReplay_SignsOffline(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Region:               "eu-west-1",
		AccessKeyID:          "AKIDEXAMPLE",
		SecretAccessKey:      "secret",
		ReplaysBucket:        "replays-bucket",
		PresignExpireMinutes: 5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.PresignExpire())

	raw, err := s.PresignReplay(context.Background(), ReplayKey("evt", "sess"))
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Host, "replays-bucket."), u.Host)
	assert.Equal(t, "/replays/evt/sess.mp4", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
}
