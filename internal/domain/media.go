package domain

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// Source is the declared origin of a published track.
type Source string

const (
	SourceUnknown          Source = ""
	SourceCamera           Source = "camera"
	SourceMicrophone       Source = "microphone"
	SourceScreenShare      Source = "screen_share"
	SourceScreenShareAudio Source = "screen_share_audio"
)

// Category selects which tile a publication is displayed on.
type Category string

const (
	CategoryCamera      Category = "camera"
	CategoryScreen      Category = "screen"
	CategoryLocalCamera Category = "local-camera"
	CategoryLocalScreen Category = "local-screen"
)

// Local maps a remote category to the matching local one.
func (c Category) Local() Category {
	switch c {
	case CategoryScreen, CategoryLocalScreen:
		return CategoryLocalScreen
	default:
		return CategoryLocalCamera
	}
}

func (c Category) IsScreen() bool {
	return c == CategoryScreen || c == CategoryLocalScreen
}

// Publication is one published stream as announced by the transport.
type Publication struct {
	SID       string    `json:"sid"`
	Identity  Identity  `json:"identity"`
	Kind      MediaKind `json:"kind"`
	Source    Source    `json:"source"`
	TrackName string    `json:"name"`
	Muted     bool      `json:"muted"`
}
