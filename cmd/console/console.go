package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/asquebay/storefront-service/internal/dashboard"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"
)

const helpText = `commands:
  <text>              search orders (applied after a short pause)
  /clear              clear search text
  /status <s|all>     filter list by status
  /more               load next page of the list
  /stats              order statistics
  /order <id>         order details
  /set <id> <status>  change order status
  /delete <id>        delete order
  /phone <phone>      customer orders by phone
  /number <number>    customer order by number
  /categories         list categories
  /products           list products
  /help               this text
  /quit               exit
`

// console — экран заказов в терминале
// вывод из таймера поиска и из команд не перемешивается
type console struct {
	d *dashboard.Dashboard
	b *dashboard.Browser

	mu  sync.Mutex
	out io.Writer
}

func newConsole(ctx context.Context, d *dashboard.Dashboard, debounce time.Duration, out io.Writer) *console {
	c := &console{d: d, out: out}
	c.b = d.NewBrowser(ctx, debounce, c.printView)
	return c
}

func (c *console) Close() {
	c.b.Close()
}

// exec выполняет одну строку; false — пора выходить
func (c *console) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		c.b.Type(line)
		return true
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		c.printf("%s", helpText)
	case "/clear":
		c.b.Type("")
	case "/status":
		if len(args) != 1 {
			c.printf("usage: /status <status|all>\n")
			return true
		}
		status := args[0]
		if status == model.StatusAll {
			status = ""
		}
		c.b.SetStatus(status)
	case "/more":
		v, err := c.b.FetchNextPage(ctx)
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printView(v)
	case "/stats":
		s, err := c.d.OrderStats(ctx)
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printStats(s)
	case "/order":
		id, ok := c.parseID(args, "/order <id>")
		if !ok {
			return true
		}
		o, err := c.d.Order(ctx, id)
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printOrders([]model.Order{o})
	case "/set":
		if len(args) != 2 {
			c.printf("usage: /set <id> <status>\n")
			return true
		}
		id, ok := c.parseID(args[:1], "/set <id> <status>")
		if !ok {
			return true
		}
		o, err := c.d.UpdateOrderStatus(ctx, id, model.OrderStatus(args[1]))
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printf("order %s is now %s\n", o.OrderNumber, o.Status)
		c.printView(c.b.View(ctx))
	case "/delete":
		id, ok := c.parseID(args, "/delete <id>")
		if !ok {
			return true
		}
		if err := c.d.DeleteOrder(ctx, id); err != nil {
			c.printErr(err)
			return true
		}
		c.printf("order %d deleted\n", id)
		c.printView(c.b.View(ctx))
	case "/phone":
		orders, err := c.d.CustomerOrders(ctx, strings.Join(args, " "))
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printOrders(orders)
	case "/number":
		o, err := c.d.CustomerOrder(ctx, strings.Join(args, " "))
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printOrders([]model.Order{o})
	case "/categories":
		categories, err := c.d.Categories(ctx)
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printCategories(categories)
	case "/products":
		products, err := c.d.Products(ctx)
		if err != nil {
			c.printErr(err)
			return true
		}
		c.printProducts(products)
	default:
		c.printf("unknown command %s, try /help\n", cmd)
	}
	return true
}

func (c *console) parseID(args []string, usage string) (int64, bool) {
	if len(args) != 1 {
		c.printf("usage: %s\n", usage)
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		c.printf("invalid id %q\n", args[0])
		return 0, false
	}
	return id, true
}

func (c *console) printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

func (c *console) printErr(err error) {
	c.printf("error: %s\n", apperr.Message(err))
}

func (c *console) printView(v dashboard.View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := v.Status
	if status == "" {
		status = model.StatusAll
	}
	fmt.Fprintf(c.out, "[%s] search=%q status=%s shown=%d total=%d", v.Mode, v.Search, status, len(v.Items), v.TotalCount)
	if v.HasNextPage {
		fmt.Fprint(c.out, " (/more for next page)")
	}
	fmt.Fprintln(c.out)
	if v.Err != nil {
		fmt.Fprintf(c.out, "error: %s\n", apperr.Message(v.Err))
		return
	}
	c.writeOrders(v.Items)
}

func (c *console) printOrders(orders []model.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeOrders(orders)
}

func (c *console) writeOrders(orders []model.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "no orders")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tCUSTOMER\tPHONE\tSTATUS\tTOTAL\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			o.ID, o.OrderNumber, o.CustomerName, o.CustomerPhone, o.Status, o.TotalPrice,
			o.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func (c *console) printStats(s model.OrderStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "total\t%d\n", s.Total)
	fmt.Fprintf(tw, "pending\t%d\n", s.Pending)
	fmt.Fprintf(tw, "confirmed\t%d\n", s.Confirmed)
	fmt.Fprintf(tw, "out for delivery\t%d\n", s.OutForDelivery)
	fmt.Fprintf(tw, "delivered\t%d\n", s.Delivered)
	fmt.Fprintf(tw, "cancelled\t%d\n", s.Cancelled)
	fmt.Fprintf(tw, "revenue\t%.2f\n", s.TotalRevenue)
	tw.Flush()
}

func (c *console) printCategories(categories []model.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSLUG\tPRODUCTS")
	for _, cat := range categories {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", cat.ID, cat.Name, cat.Slug, cat.ProductCount)
	}
	tw.Flush()
}

func (c *console) printProducts(products []model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK\tLEVEL\tSTATUS")
	for _, p := range products {
		category := "-"
		if p.Category != nil {
			category = p.Category.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d\t%s\t%s\n",
			p.ID, p.Name, category, p.Price, p.TotalStock(), p.StockLevel(), p.Status)
	}
	tw.Flush()
}
