package models

type Country struct {
	Code       string
	Name       string
	Capital    string
	Region     string
	Population int64
}
