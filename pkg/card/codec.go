package card

import "encoding/json"

// Cache payload codecs. Products and FAQs live in their own tables, so card
// payloads deliberately exclude them; the cache connector reassembles the
// full entity at load time.

func EncodeCard(c *Card) (string, error) {
	clone := *c
	clone.Products = nil
	clone.FAQs = nil
	b, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeCard(payload string) (*Card, error) {
	c := NewCard(0)
	if err := json.Unmarshal([]byte(payload), c); err != nil {
		return nil, err
	}
	if c.Names == nil {
		c.Names = map[string]string{}
	}
	if c.Effects == nil {
		c.Effects = map[string]string{}
	}
	if c.ReleaseDates == nil {
		c.ReleaseDates = map[string]string{}
	}
	if c.Banlist == nil {
		c.Banlist = map[string]string{}
	}
	return c, nil
}

func EncodeRuling(r *Ruling) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeRuling(payload string) (*Ruling, error) {
	r := NewRuling(0)
	if err := json.Unmarshal([]byte(payload), r); err != nil {
		return nil, err
	}
	if r.Questions == nil {
		r.Questions = map[string]string{}
	}
	if r.Answers == nil {
		r.Answers = map[string]string{}
	}
	return r, nil
}

func EncodeCardSet(s *CardSet) (string, error) {
	clone := *s
	clone.Products = nil
	b, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeCardSet(payload string) (*CardSet, error) {
	s := NewCardSet("")
	if err := json.Unmarshal([]byte(payload), s); err != nil {
		return nil, err
	}
	if s.Names == nil {
		s.Names = map[string]string{}
	}
	if s.ReleaseDates == nil {
		s.ReleaseDates = map[string]string{}
	}
	return s, nil
}

func EncodeFAQ(e FAQEntry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeFAQ(payload string) (FAQEntry, error) {
	var e FAQEntry
	err := json.Unmarshal([]byte(payload), &e)
	return e, err
}
