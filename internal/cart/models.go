package cart

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrMissingProduct  = errors.New("product id is required")
	ErrMissingItemID   = errors.New("cart item id is required")
)

type Item struct {
	ID           string  `json:"id,omitempty"`
	ProductID    string  `json:"productId"`
	UserID       string  `json:"userId"`
	Quantity     int     `json:"quantity"`
	ProductName  string  `json:"productName,omitempty"`
	ProductPrice float64 `json:"productPrice,omitempty"`
	ProductImage string  `json:"productImage,omitempty"`
}

// Mutation is the body of POST, PUT and DELETE /Cart.
type Mutation struct {
	ID        string `json:"id,omitempty"`
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
	Quantity  int    `json:"quantity"`
}

// flexString accepts both JSON strings and numbers; backends disagree on how
// ids are typed.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type wireProduct struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type wireItem struct {
	ID           flexString   `json:"id"`
	ProductID    flexString   `json:"productId"`
	UserID       flexString   `json:"userId"`
	Quantity     *int         `json:"quantity"`
	ProductName  string       `json:"productName"`
	ProductPrice float64      `json:"productPrice"`
	ProductImage string       `json:"productImage"`
	Product      *wireProduct `json:"product"`
}

// item projects the wire shape, preferring the nested product over the flat
// fields.
func (w wireItem) item(fallbackUser string) Item {
	it := Item{
		ID:           string(w.ID),
		ProductID:    string(w.ProductID),
		UserID:       string(w.UserID),
		ProductName:  w.ProductName,
		ProductPrice: w.ProductPrice,
		ProductImage: w.ProductImage,
	}
	if w.Quantity != nil {
		it.Quantity = *w.Quantity
	}
	if it.UserID == "" {
		it.UserID = fallbackUser
	}
	if p := w.Product; p != nil {
		if p.Name != "" {
			it.ProductName = p.Name
		}
		if p.Price != 0 {
			it.ProductPrice = p.Price
		}
		if p.Image != "" {
			it.ProductImage = p.Image
		}
	}
	return it
}

type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	Data      json.RawMessage `json:"data"`
	Items     json.RawMessage `json:"items"`
	Error     json.RawMessage `json:"error"`
}

func isJSONNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// decodeItems accepts {data:[...]}, {data:{...}}, [...] and {items:[...]}.
func decodeItems(raw json.RawMessage) ([]wireItem, error) {
	raw = bytes.TrimSpace(raw)
	if isJSONNull(raw) {
		return nil, nil
	}
	if raw[0] == '[' {
		var items []wireItem
		err := json.Unmarshal(raw, &items)
		return items, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch {
	case !isJSONNull(env.Data):
		data := bytes.TrimSpace(env.Data)
		if data[0] == '[' {
			var items []wireItem
			err := json.Unmarshal(data, &items)
			return items, err
		}
		var one wireItem
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		return []wireItem{one}, nil
	case !isJSONNull(env.Items):
		var items []wireItem
		err := json.Unmarshal(env.Items, &items)
		return items, err
	}
	return nil, nil
}

// decodeOne reads a single line from a mutation response, which is either the
// item itself or an envelope around it.
func decodeOne(raw json.RawMessage) (*wireItem, *envelope, error) {
	raw = bytes.TrimSpace(raw)
	if isJSONNull(raw) || raw[0] != '{' {
		return nil, nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, err
	}
	src := raw
	if !isJSONNull(env.Data) {
		src = env.Data
	}
	src = bytes.TrimSpace(src)
	if src[0] != '{' {
		return nil, &env, nil
	}
	var w wireItem
	if err := json.Unmarshal(src, &w); err != nil {
		return nil, &env, err
	}
	return &w, &env, nil
}
