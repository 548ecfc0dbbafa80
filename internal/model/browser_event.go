package model

// BrowserEventKind names a raw document/window signal forwarded by the client.
type BrowserEventKind string

const (
	BrowserContextMenu      BrowserEventKind = "contextmenu"
	BrowserCopy             BrowserEventKind = "copy"
	BrowserPaste            BrowserEventKind = "paste"
	BrowserKeyDown          BrowserEventKind = "keydown"
	BrowserVisibilityChange BrowserEventKind = "visibilitychange"
	BrowserBlur             BrowserEventKind = "blur"
	BrowserFullscreenChange BrowserEventKind = "fullscreenchange"
)

// BrowserEvent is the raw signal payload. Only the fields relevant to Kind are set.
type BrowserEvent struct {
	Kind       BrowserEventKind `json:"kind" binding:"required"`
	Key        string           `json:"key,omitempty"`
	CtrlKey    bool             `json:"ctrl_key,omitempty"`
	AltKey     bool             `json:"alt_key,omitempty"`
	MetaKey    bool             `json:"meta_key,omitempty"`
	Visibility string           `json:"visibility,omitempty"` // "visible" | "hidden"
	Fullscreen bool             `json:"fullscreen,omitempty"`
}
