package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"neokudilonga/internal/util"
	"neokudilonga/pkg/domain"
)

const (
	chatSource          = "whatsapp"
	chatProductLimit    = 50
	chatPhoneDigits     = 9
	chatCatalogCacheKey = "chatbot:catalog"
)

// ChatFallback is sent whenever an answer cannot be produced.
const ChatFallback = "Desculpe, ocorreu um erro ao processar sua solicitação. Por favor, tente novamente mais tarde ou contacte-nos diretamente pelo +244 919 948 887."

const chatCompanyInfo = `You are the official assistant for Neokudilonga, an Angolan bookstore specializing in school books and educational games.

COMPANY INFO:
- Name: Neokudilonga
- Location: Condomínio BCI 6 Casas, Casa 6, Morro Bento, Luanda (behind Kero, in front of the lagoon).
- Contacts: +244 919 948 887, neokudilonga@gmail.com
- Website: https://neokudilonga.com`

const chatInstructions = `INSTRUCTIONS:
- Answer in Portuguese.
- Be polite, professional, and helpful.
- If asked about an order status, use the context above. If they provide an order reference not in context, tell them you'll check with a human.
- If asked about stock, refer to the product list.
- If you don't know something or it requires manual action (like a refund), ask the user to wait for a human agent or contact +244 919 948 887.
- Do not invent information not provided in the context.
- Keep responses concise for WhatsApp.`

// chatCatalog is the catalog part of the prompt, cached in the client tier.
type chatCatalog struct {
	Products   string `json:"products"`
	Schools    string `json:"schools"`
	Categories string `json:"categories"`
}

// Answer replies to a customer message. It never fails: errors are logged
// and answered with ChatFallback. Successful exchanges are recorded.
func (a *App) Answer(ctx context.Context, query, phone, messageID string) string {
	logger := util.LoggerFromContext(ctx)
	reply, err := a.answer(ctx, query, phone)
	if err != nil {
		logger.Error("chatbot answer failed", "err", err)
		return ChatFallback
	}
	log := domain.ChatLog{
		ID:        util.NewID(),
		UserPhone: phone,
		Query:     query,
		Response:  reply,
		MessageID: messageID,
		Source:    chatSource,
		Timestamp: a.now().UTC(),
	}
	if err := a.store.AppendChatLog(ctx, log); err != nil {
		logger.Warn("chat log write failed", "err", err)
	}
	return reply
}

func (a *App) answer(ctx context.Context, query, phone string) (string, error) {
	if a.generator == nil {
		return "", errors.New("text generator not configured")
	}
	var (
		cat    chatCatalog
		orders []domain.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cat, err = a.chatCatalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = a.orders(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("load chat context: %w", err)
	}
	prompt := buildChatPrompt(cat, phone, ordersForPhone(orders, phone))
	reply, err := a.generator.GenerateText(ctx, prompt, "Client Query: "+query)
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (a *App) chatCatalog(ctx context.Context) (chatCatalog, error) {
	var cat chatCatalog
	if a.views.Get(ctx, chatCatalogCacheKey, &cat) {
		return cat, nil
	}
	var (
		products   []domain.Product
		schools    []domain.School
		categories []domain.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = a.products(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		schools, err = a.Schools(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = a.Categories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return chatCatalog{}, err
	}

	var sb strings.Builder
	for i, p := range products {
		if i == chatProductLimit {
			break
		}
		status := string(p.StockStatus)
		if status == "" {
			status = "in stock"
		}
		fmt.Fprintf(&sb, "- %s: %d AOA (%s)\n", p.Name.Text(domain.LangPT), p.Price, status)
	}
	cat.Products = sb.String()
	sb.Reset()
	for _, s := range schools {
		fmt.Fprintf(&sb, "- %s\n", s.Name.Text(domain.LangPT))
	}
	cat.Schools = sb.String()
	sb.Reset()
	for _, c := range categories {
		fmt.Fprintf(&sb, "- %s (%s)\n", c.Name.Text(domain.LangPT), c.Type)
	}
	cat.Categories = sb.String()
	a.views.Set(ctx, chatCatalogCacheKey, cat, a.viewTTL)
	return cat, nil
}

// ordersForPhone matches on the last nine digits so country prefixes do not
// matter. An empty phone matches nothing.
func ordersForPhone(orders []domain.Order, phone string) []domain.Order {
	digits := onlyDigits(phone)
	if len(digits) > chatPhoneDigits {
		digits = digits[len(digits)-chatPhoneDigits:]
	}
	if digits == "" {
		return nil
	}
	var out []domain.Order
	for _, o := range orders {
		if strings.Contains(onlyDigits(o.Phone), digits) {
			out = append(out, o)
		}
	}
	return out
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func buildChatPrompt(cat chatCatalog, phone string, orders []domain.Order) string {
	var sb strings.Builder
	sb.WriteString(chatCompanyInfo)
	sb.WriteString("\n\nAVAILABLE PRODUCTS:\n")
	sb.WriteString(cat.Products)
	sb.WriteString("\nPARTNER SCHOOLS:\n")
	sb.WriteString(cat.Schools)
	sb.WriteString("\nCATEGORIES:\n")
	sb.WriteString(cat.Categories)
	sb.WriteString("\nUSER CONTEXT:\n- Phone: ")
	sb.WriteString(phone)
	sb.WriteString("\n- Previous Orders Found: ")
	if len(orders) == 0 {
		sb.WriteString("No orders found for this number.")
	}
	for i, o := range orders {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "Ref: %s, Status: %s/%s, Date: %s", o.Reference, o.PaymentStatus, o.DeliveryStatus, o.Date.Format("2006-01-02"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(chatInstructions)
	return sb.String()
}
