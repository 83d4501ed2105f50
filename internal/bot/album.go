package bot

import (
	"time"
)

const (
	// albumTimeout is how long to wait for more photos of the same album.
	albumTimeout = 1500 * time.Millisecond
	// maxAlbumPhotos matches Telegram's album limit.
	maxAlbumPhotos = 10
)

// AlbumBuffer collects photos from a Telegram album (MediaGroup) before
// they are identified together.
type AlbumBuffer struct {
	MediaGroupID  string
	FileIDs       []string
	Timer         *time.Timer
	FirstReceived time.Time
}

// bufferAlbumPhoto adds a photo to the session's album buffer and
// (re)schedules processing. Photos of a different album flush the previous
// buffer through onFlush.
func (s *UserSession) bufferAlbumPhoto(fileID, mediaGroupID string, onFlush func(fileIDs []string), onTimeout func(buffer *AlbumBuffer)) {
	buffer := s.albumBuffer

	if buffer == nil || buffer.MediaGroupID != mediaGroupID {
		if buffer != nil && len(buffer.FileIDs) > 0 {
			if buffer.Timer != nil {
				buffer.Timer.Stop()
			}
			onFlush(buffer.FileIDs)
		}
		buffer = &AlbumBuffer{
			MediaGroupID:  mediaGroupID,
			FirstReceived: time.Now(),
		}
		s.albumBuffer = buffer
	}

	if len(buffer.FileIDs) < maxAlbumPhotos {
		buffer.FileIDs = append(buffer.FileIDs, fileID)
	}

	if buffer.Timer != nil {
		buffer.Timer.Stop()
	}
	captured := buffer
	buffer.Timer = time.AfterFunc(albumTimeout, func() {
		onTimeout(captured)
	})
}

// takeAlbum clears the buffer and returns its photos, or nil when buffer
// is no longer the current one.
func (s *UserSession) takeAlbum(buffer *AlbumBuffer) []string {
	if s.albumBuffer != buffer || buffer == nil {
		return nil
	}
	s.albumBuffer = nil
	return buffer.FileIDs
}
