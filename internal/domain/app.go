package domain

// App is an entry of the app registry users bind tasks to.
type App struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"app_name" json:"app_name"`
	DisplayName string `db:"display_name" json:"display_name"`
}
