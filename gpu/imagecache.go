package gpu

import (
	"container/list"
	"image"
	"sync"

	gl "github.com/go-gl/gl/v3.1/gles2"
)

// Store keeps decoded image pixels CPU-side so textures evicted from the
// GPU cache can be re-uploaded.
type Store struct {
	mu     sync.Mutex
	images map[uint32]*image.RGBA
}

// NewStore creates an empty image store.
func NewStore() *Store {
	return &Store{images: make(map[uint32]*image.RGBA)}
}

// Store retains pixels under an id (parser.ImageStore).
func (s *Store) Store(id uint32, img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = img
}

// Get returns the pixels for an id.
func (s *Store) Get(id uint32) (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	return img, ok
}

// Drop forgets an id entirely (placement removed).
func (s *Store) Drop(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, id)
}

// TextureCache is a bounded LRU of GPU textures keyed by image id. Evicted
// entries are re-uploaded from the Store on next use.
type TextureCache struct {
	store *Store
	max   int

	order   *list.List // front = most recent
	entries map[uint32]*list.Element
}

type texEntry struct {
	id  uint32
	tex uint32
}

// NewTextureCache creates a cache holding at most max textures.
func NewTextureCache(store *Store, max int) *TextureCache {
	if max <= 0 {
		max = 16
	}
	return &TextureCache{
		store:   store,
		max:     max,
		order:   list.New(),
		entries: make(map[uint32]*list.Element),
	}
}

// Bind returns the texture for an image id, uploading from the store on a
// miss and evicting the least recently used entry past capacity.
func (c *TextureCache) Bind(id uint32) (uint32, bool) {
	if el, ok := c.entries[id]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*texEntry).tex, true
	}
	img, ok := c.store.Get(id)
	if !ok {
		return 0, false
	}

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	b := img.Bounds()
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(b.Dx()), int32(b.Dy()), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	el := c.order.PushFront(&texEntry{id: id, tex: tex})
	c.entries[id] = el

	for c.order.Len() > c.max {
		last := c.order.Back()
		entry := last.Value.(*texEntry)
		gl.DeleteTextures(1, &entry.tex)
		c.order.Remove(last)
		delete(c.entries, entry.id)
	}
	return tex, true
}

// Invalidate drops every texture without deleting GL objects (used after
// GPU state loss, where the objects are already gone).
func (c *TextureCache) Invalidate() {
	c.order.Init()
	c.entries = make(map[uint32]*list.Element)
}

// Release deletes all textures (clean shutdown).
func (c *TextureCache) Release() {
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*texEntry)
		gl.DeleteTextures(1, &entry.tex)
	}
	c.Invalidate()
}
