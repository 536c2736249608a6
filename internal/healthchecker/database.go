package healthchecker

import (
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
)

// CheckDB opens a fresh connection and closes it again.
func CheckDB() error {
	dbConn, err := database.NewDatabase()
	if err != nil {
		return err
	}

	sqlDB, err := dbConn.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
