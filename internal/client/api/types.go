package api

// Movie はウォッチリストと画面表示で使う映画の射影。
// ウォッチリストにはサーバーから受け取った値をそのまま保存する。
type Movie struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	ReleaseDate  string  `json:"release_date"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
	VoteCount    int     `json:"vote_count,omitempty"`
}

// CastMember は出演者。
type CastMember struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
}

// Review はユーザーレビュー。
type Review struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// MovieDetails は GET /api/movie のレスポンス。
type MovieDetails struct {
	Movie   *Movie       `json:"movie"`
	Credits []CastMember `json:"credits"`
	Reviews []Review     `json:"reviews"`
}

// RandomMovie はヒーロー背景の候補。
type RandomMovie struct {
	Title        string `json:"title"`
	BackdropPath string `json:"backdrop_path"`
	PosterPath   string `json:"poster_path"`
}

// VerifiedUser は POST /api/verify-token のレスポンス。
type VerifiedUser struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}
