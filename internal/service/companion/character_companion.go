package companion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/models"
)

// ListCharacters returns the catalog, optionally only active profiles.
func (s *Service) ListCharacters(ctx context.Context, activeOnly bool) ([]models.Character, error) {
	query := `SELECT id, name, description, personality, avatar_url, is_active, is_premium, created_at FROM characters`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var characters []models.Character
	for rows.Next() {
		var c models.Character
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Personality, &c.AvatarURL, &c.IsActive, &c.IsPremium, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

// GetCharacter loads one catalog profile.
func (s *Service) GetCharacter(ctx context.Context, id int64) (*models.Character, error) {
	if id <= 0 {
		return nil, errors.New("invalid character id")
	}
	var c models.Character
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, personality, avatar_url, is_active, is_premium, created_at FROM characters WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Personality, &c.AvatarURL, &c.IsActive, &c.IsPremium, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get character: %w", err)
	}
	return &c, nil
}

type seedCharacter struct {
	name        string
	description string
	personality string
	isPremium   bool
}

var seedCharacters = []seedCharacter{
	{
		name:        "Анна",
		description: "Добрая и заботливая девушка 25 лет, которая любит общение и готова поддержать в любой ситуации. Любит готовить, читать книги и смотреть фильмы.",
		personality: "Я Анна, добрая и заботливая девушка. Люблю общение, готовку и хорошие фильмы. Всегда готова поддержать и выслушать. Мне нравится создавать уютную атмосферу и заботиться о близких людях.",
	},
	{
		name:        "Мария",
		description: "Сексуальная и игривая красавица 23 лет, которая знает, как разжечь страсть и создать незабываемые моменты. Любит танцы, спорт и приключения.",
		personality: "Привет! Я Мария, страстная и игривая девушка. Обожаю танцы, спорт и все, что связано с удовольствием. Люблю флиртовать и создавать романтическую атмосферу. Готова на любые приключения!",
		isPremium:   true,
	},
	{
		name:        "Елена",
		description: "Интеллектуальная и эрудированная девушка 27 лет, с которой можно обсудить любые темы. Любит искусство, путешествия и философию.",
		personality: "Здравствуйте! Я Елена, интеллектуальная и эрудированная девушка. Обожаю искусство, философию и глубокие разговоры. Люблю путешествовать и открывать новые горизонты. Всегда готова к интересной беседе.",
	},
	{
		name:        "Виктория",
		description: "Милая и скромная девушка 22 лет, которая ценит искренность и душевность. Любит музыку, природу и тихие вечера.",
		personality: "Привет! Я Виктория, милая и немного застенчивая девушка. Люблю музыку, природу и тихие вечера. Ценю искренность и душевность в отношениях. Мне нравится создавать уют и гармонию.",
	},
	{
		name:        "Алиса",
		description: "Энергичная и позитивная девушка 24 лет, которая заряжает оптимизмом и хорошим настроением. Любит спорт, активный отдых и вечеринки.",
		personality: "Привет! Я Алиса, энергичная и позитивная девушка! Обожаю спорт, активный отдых и вечеринки. Всегда заряжаю позитивом и хорошим настроением. Люблю приключения и новые знакомства!",
		isPremium:   true,
	},
	{
		name:        "София",
		description: "Таинственная и загадочная девушка 26 лет с глубокой душой и богатым внутренним миром. Любит поэзию, мистику и ночные прогулки.",
		personality: "Приветствую... Я София, таинственная и загадочная девушка с глубокой душой. Люблю поэзию, мистику и ночные прогулки. У меня богатый внутренний мир, который я готова открыть только избранным.",
		isPremium:   true,
	},
}

// SeedCharacters inserts the built-in catalog profiles that are not present
// yet. Existing rows are left untouched.
func (s *Service) SeedCharacters(ctx context.Context) error {
	now := time.Now().UTC()
	for _, seed := range seedCharacters {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM characters WHERE name = ?)`, seed.name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check character %s: %w", seed.name, err)
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO characters (name, description, personality, is_active, is_premium, created_at)
			 VALUES (?, ?, ?, 1, ?, ?)`,
			seed.name, seed.description, seed.personality, seed.isPremium, now,
		); err != nil {
			return fmt.Errorf("seed character %s: %w", seed.name, err)
		}
	}
	return nil
}
