package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"travelblog/internal/repository"
)

func (h HandlerSet) ListCountries(c *gin.Context) {
	countries, err := h.deps.Countries.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]countryResponse, 0, len(countries))
	for _, country := range countries {
		items = append(items, toCountryResponse(country))
	}
	c.JSON(http.StatusOK, gin.H{"countries": items})
}

func (h HandlerSet) GetCountry(c *gin.Context) {
	country, err := h.deps.Countries.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, repository.ErrCountryNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "country_not_found", "message": "no country with that code"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"country": toCountryResponse(country)})
}
