package model

import "time"

type InstallRequest struct {
	RequestID     string    `db:"request_id"`
	ModelPath     string    `db:"model_path"`
	CallbackURL   string    `db:"callback_url"`
	Status        string    `db:"status"`
	Message       string    `db:"message"`
	CallbackError string    `db:"callback_error"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
