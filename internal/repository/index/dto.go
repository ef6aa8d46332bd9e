package index

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/storelens/storelens/internal/domain"
)

// Hash field names of an indexed product document.
const (
	fieldName        = "name"
	fieldDescription = "description"
	fieldCategory    = "category"
	fieldPrice       = "price"
	fieldStock       = "stock"
	fieldImageURL    = "image_url"
	fieldEmbedding   = "embedding"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

// buildHashFields converts an embedded product into a flat map for HSET.
func buildHashFields(p *domain.EmbeddedProduct) map[string]string {
	return map[string]string{
		fieldName:        p.Name,
		fieldDescription: p.Description,
		fieldCategory:    p.Category,
		fieldPrice:       strconv.FormatFloat(p.Price, 'f', -1, 64),
		fieldStock:       strconv.Itoa(p.Stock),
		fieldImageURL:    p.ImageURL,
		fieldEmbedding:   vectorToBytes(p.Embedding),
		fieldCreatedAt:   strconv.FormatInt(p.CreatedAt.UnixMilli(), 10),
		fieldUpdatedAt:   strconv.FormatInt(p.UpdatedAt.UnixMilli(), 10),
	}
}

// parseProduct converts hash fields back into a product. Unknown or
// malformed fields are dropped rather than failing the whole document.
func parseProduct(id string, m map[string]string) domain.Product {
	p := domain.Product{
		ID:          id,
		Name:        m[fieldName],
		Description: m[fieldDescription],
		Category:    m[fieldCategory],
		ImageURL:    m[fieldImageURL],
	}
	if f, err := strconv.ParseFloat(m[fieldPrice], 64); err == nil {
		p.Price = f
	}
	if n, err := strconv.Atoi(m[fieldStock]); err == nil {
		p.Stock = n
	}
	if ms, err := strconv.ParseInt(m[fieldCreatedAt], 10, 64); err == nil {
		p.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(m[fieldUpdatedAt], 10, 64); err == nil {
		p.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return p
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
