package domain

import "time"

type Meme struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	BoxCount int    `json:"box_count"`
}

type Catalog struct {
	Memes     []Meme    `json:"memes"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Gallery struct {
	Title string `json:"title"`
	Memes []Meme `json:"memes"`
	Stale bool   `json:"stale"`
}
