package model

// Movie はTMDBのmovieオブジェクトのうちフロントエンドが利用する部分集合。
// 正規化はせず、TMDBの値をそのまま通過させる。
type Movie struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title,omitempty"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	BackdropPath  string  `json:"backdrop_path"`
	ReleaseDate   string  `json:"release_date"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int     `json:"vote_count"`
	Popularity    float64 `json:"popularity,omitempty"`
}

// CastMember は出演者1名を表す。
type CastMember struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

// Review はユーザーレビュー1件を表す。
type Review struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// MovieDetails は GET /api/movie のレスポンス。
// CreditsとReviewsは空でもnullではなく空配列としてシリアライズする。
type MovieDetails struct {
	Movie   *Movie       `json:"movie"`
	Credits []CastMember `json:"credits"`
	Reviews []Review     `json:"reviews"`
}

// RandomMovie はヒーロー背景用のランダム映画1件を表す。
type RandomMovie struct {
	Title        string `json:"title"`
	BackdropPath string `json:"backdrop_path"`
	PosterPath   string `json:"poster_path"`
}
