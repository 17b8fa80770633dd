package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"travelblog/internal/models"
)

var ErrCountryNotFound = errors.New("country not found")

type CountryRepository struct {
	db DB
}

func NewCountryRepository(db DB) *CountryRepository {
	return &CountryRepository{db: db}
}

func (r *CountryRepository) List(ctx context.Context) ([]models.Country, error) {
	const query = `SELECT code, name, capital, region, population FROM countries ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.Code, &c.Name, &c.Capital, &c.Region, &c.Population); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (r *CountryRepository) GetByCode(ctx context.Context, code string) (models.Country, error) {
	const query = `SELECT code, name, capital, region, population FROM countries WHERE code = $1`

	var c models.Country
	err := r.db.QueryRow(ctx, query, strings.ToUpper(code)).Scan(&c.Code, &c.Name, &c.Capital, &c.Region, &c.Population)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Country{}, ErrCountryNotFound
		}
		return models.Country{}, err
	}
	return c, nil
}
