package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/domain/product"
	"marketplace-chat/internal/domain/user"
	"marketplace-chat/internal/repository"
	marketplace_errors "marketplace-chat/pkg/errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	TestUserCount int
	// ProductsPerUser is how many listings each seeded seller gets.
	ProductsPerUser int
}

func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		TestUserCount:   5,
		ProductsPerUser: 2,
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Users         []user.User
	Products      []product.Product
	Chats         []chat.Chat
	Messages      int
	Notifications int
}

var testUserData = []struct {
	first, last, email string
}{
	{"Alice", "Johnson", "alice@test.com"},
	{"Bob", "Smith", "bob@test.com"},
	{"Charlie", "Brown", "charlie@test.com"},
	{"Diana", "Prince", "diana@test.com"},
	{"Edward", "Chen", "edward@test.com"},
	{"Fiona", "Green", "fiona@test.com"},
	{"George", "Miller", "george@test.com"},
	{"Hannah", "White", "hannah@test.com"},
}

var productNames = []string{
	"Road Bike", "Desk Lamp", "Vintage Camera", "Office Chair",
	"Guitar", "Espresso Machine", "Bookshelf", "Snowboard",
}

var conversation = []string{
	"Hi! Is this still available?",
	"Yes it is. Are you interested?",
	"Would you take a lower offer?",
	"I can do a small discount if you pick it up today.",
}

// Seed fills an empty development database with users, listings, chats
// between them and a few notifications. Existing users are reused.
func Seed(ctx context.Context, db *gorm.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	result := &SeedResult{}

	log.Println("Starting database seeding...")

	users, err := seedTestUsers(ctx, db, cfg.TestUserCount)
	if err != nil {
		return nil, fmt.Errorf("failed to seed test users: %w", err)
	}
	result.Users = users

	if len(users) < 2 {
		return result, nil
	}

	products, err := seedProducts(ctx, db, users, cfg.ProductsPerUser)
	if err != nil {
		return nil, fmt.Errorf("failed to seed products: %w", err)
	}
	result.Products = products

	chats, messages, err := seedChats(ctx, db, users, products)
	if err != nil {
		return nil, fmt.Errorf("failed to seed chats: %w", err)
	}
	result.Chats = chats
	result.Messages = messages

	count, err := seedNotifications(ctx, db, products)
	if err != nil {
		return nil, fmt.Errorf("failed to seed notifications: %w", err)
	}
	result.Notifications = count

	log.Println("Database seeding completed successfully!")
	return result, nil
}

func seedTestUsers(ctx context.Context, db *gorm.DB, count int) ([]user.User, error) {
	users := make([]user.User, 0, count)
	for i := 0; i < count && i < len(testUserData); i++ {
		data := testUserData[i]

		var existing user.User
		err := db.WithContext(ctx).Where("email = ?", data.email).First(&existing).Error
		if err == nil {
			log.Printf("Test user %s already exists, skipping", data.email)
			users = append(users, existing)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		u := user.User{
			FirstName: data.first,
			LastName:  data.last,
			Name:      data.first + " " + data.last,
			Email:     data.email,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, fmt.Errorf("failed to create test user %s: %w", data.email, err)
		}
		users = append(users, u)
		log.Printf("Test user seeded: %s", data.email)
	}
	return users, nil
}

func seedProducts(ctx context.Context, db *gorm.DB, sellers []user.User, perUser int) ([]product.Product, error) {
	var products []product.Product
	next := 0
	for _, seller := range sellers {
		for i := 0; i < perUser; i++ {
			name := productNames[next%len(productNames)]
			next++
			slug := fmt.Sprintf("%s-%d-%d", strings.ToLower(strings.ReplaceAll(name, " ", "-")), seller.ID, i)

			p := product.Product{Name: name, NameSlug: &slug, UserID: seller.ID, Status: product.StatusActive}
			err := db.WithContext(ctx).Where(product.Product{NameSlug: &slug}).FirstOrCreate(&p).Error
			if err != nil {
				return nil, err
			}
			media := product.Media{
				ProductID: p.ID,
				URL:       fmt.Sprintf("https://picsum.photos/seed/%s/600/400", slug),
				Type:      "image",
			}
			if err := db.WithContext(ctx).Where(product.Media{ProductID: p.ID}).FirstOrCreate(&media).Error; err != nil {
				return nil, err
			}
			products = append(products, p)
		}
	}
	return products, nil
}

// seedChats opens one chat per product with the next user as buyer and
// replays a short exchange through the repository so counters stay right.
func seedChats(ctx context.Context, db *gorm.DB, users []user.User, products []product.Product) ([]chat.Chat, int, error) {
	chats := repository.NewChatRepository(db)
	var (
		out      []chat.Chat
		messages int
	)
	for i, p := range products {
		buyer := users[(i+1)%len(users)]
		if buyer.ID == p.UserID {
			buyer = users[(i+2)%len(users)]
		}
		if buyer.ID == p.UserID {
			continue
		}

		c, err := chats.FindByParticipants(ctx, p.ID, p.UserID, buyer.ID)
		if err == nil {
			out = append(out, c)
			continue
		}
		if !errors.Is(err, marketplace_errors.ErrNotFound) {
			return nil, 0, err
		}
		c = chat.Chat{ProductID: p.ID, UserAID: p.UserID, UserBID: buyer.ID, Status: chat.StatusActive}
		if err := chats.Create(ctx, &c); err != nil {
			return nil, 0, err
		}

		start := time.Now().Add(-time.Duration(len(products)-i) * time.Hour)
		for j, content := range conversation[:1+i%len(conversation)] {
			sender := buyer.ID
			if j%2 == 1 {
				sender = p.UserID
			}
			at := start.Add(time.Duration(j) * time.Minute)
			m := chat.Message{ChatID: c.ID, SenderID: sender, Content: content, CreatedAt: at, UpdatedAt: at}
			if err := chats.RecordMessage(ctx, c, &m); err != nil {
				return nil, 0, err
			}
			messages++
		}
		out = append(out, c)
	}
	return out, messages, nil
}

func seedNotifications(ctx context.Context, db *gorm.DB, products []product.Product) (int, error) {
	notifications := repository.NewNotificationRepository(db)
	count := 0
	for _, p := range products {
		var existing int64
		err := db.WithContext(ctx).Model(&notification.Notification{}).
			Where("module = ? AND resource_id = ?", notification.ModuleProduct, p.ID).
			Count(&existing).Error
		if err != nil {
			return count, err
		}
		if existing > 0 {
			continue
		}

		id := p.ID
		n := notification.Notification{
			UserID:     p.UserID,
			Title:      "Your listing is live",
			Message:    fmt.Sprintf("%s is now visible to buyers", p.Name),
			Module:     notification.ModuleProduct,
			ResourceID: &id,
			Payload:    datatypes.JSONMap{"productId": p.ID},
		}
		if err := notifications.Create(ctx, &n); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ClearAndReseed drops every table, recreates the schema and seeds it.
func ClearAndReseed(ctx context.Context, db *gorm.DB, cfg *SeedConfig) (*SeedResult, error) {
	if err := repository.DropSchema(db); err != nil {
		return nil, err
	}
	if err := repository.InitSchema(db); err != nil {
		return nil, err
	}
	return Seed(ctx, db, cfg)
}
