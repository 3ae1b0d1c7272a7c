package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/wms_backend/config"
	"bitbucket.org/mmdatafocus/wms_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Full outbound lifecycle against real MySQL: receive via inbound
// posting, reserve FEFO on picking, partial issue on posting, release
// of the remainder, and the quantities that must balance at each step.
func TestOutboundLifecycleConservation(t *testing.T) {
	ctx := setupIntegration(t)

	warehouse, product := seedCatalog(t, ctx, "MOUSE-1")

	// two batches, B1 expires first
	exp1 := time.Now().AddDate(0, 1, 0)
	exp2 := time.Now().AddDate(0, 6, 0)
	inbound, err := models.CreateInbound(ctx, &models.NewInbound{
		WarehouseId: warehouse.ID,
		Details: []models.NewInboundDetail{
			{ProductId: product.ID, ActualQty: decimal.NewFromInt(10), BatchNo: "B1", ExpirationDate: &exp1},
			{ProductId: product.ID, ActualQty: decimal.NewFromInt(20), BatchNo: "B2", ExpirationDate: &exp2},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateInbound: %v", err)
	}
	if !regexp.MustCompile(`^IN\d{8}-\d{4}$`).MatchString(inbound.OrderNo) {
		t.Errorf("unexpected inbound order number %q", inbound.OrderNo)
	}

	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusPending, 1)
	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusApproved, 2)
	posted := mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusPosted, 2)
	if !posted.TotalQuantity.Equal(decimal.NewFromInt(30)) {
		t.Errorf("posted inbound total: got %s, want 30", posted.TotalQuantity)
	}

	db := config.GetDB()
	available, err := models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if err != nil {
		t.Fatalf("GetAvailable: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("available after receipt: got %s, want 30", available)
	}

	// picking must drain the earlier-expiring batch first
	outbound, err := models.CreateOutbound(ctx, &models.NewOutbound{
		WarehouseId: warehouse.ID,
		Purpose:     "workshop issue",
		Details: []models.NewOutboundDetail{
			{ProductId: product.ID, ApplyQty: decimal.NewFromInt(15)},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateOutbound: %v", err)
	}
	mustTransitionOutbound(t, ctx, outbound.ID, models.OrderStatusPending, 1)
	mustTransitionOutbound(t, ctx, outbound.ID, models.OrderStatusApproved, 2)
	mustTransitionOutbound(t, ctx, outbound.ID, models.OrderStatusPicking, 2)

	var b1, b2 models.StockLine
	if err := db.Where("product_id = ? AND batch_no = ?", product.ID, "B1").First(&b1).Error; err != nil {
		t.Fatalf("fetch B1: %v", err)
	}
	if err := db.Where("product_id = ? AND batch_no = ?", product.ID, "B2").First(&b2).Error; err != nil {
		t.Fatalf("fetch B2: %v", err)
	}
	if !b1.ReservedQty.Equal(decimal.NewFromInt(10)) || !b2.ReservedQty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("FEFO reservation split: B1 reserved %s (want 10), B2 reserved %s (want 5)",
			b1.ReservedQty, b2.ReservedQty)
	}
	available, _ = models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if !available.Equal(decimal.NewFromInt(15)) {
		t.Errorf("available during picking: got %s, want 15", available)
	}

	// reserving never journals
	var moveCount int64
	db.Model(&models.StockMovement{}).Where("product_id = ?", product.ID).Count(&moveCount)
	if moveCount != 2 {
		t.Errorf("movement count after picking: got %d, want 2 (receipts only)", moveCount)
	}

	// post with a short pick: 12 of the 15 applied
	detailId := outbound.Details[0].ID
	postedOut, err := models.TransitionOutbound(ctx, outbound.ID, models.OrderStatusPosted, 2,
		[]models.PickedQuantity{{DetailId: detailId, Quantity: decimal.NewFromInt(12)}})
	if err != nil {
		t.Fatalf("post outbound: %v", err)
	}
	if postedOut.Details[0].PickedQty == nil || !postedOut.Details[0].PickedQty.Equal(decimal.NewFromInt(12)) {
		t.Errorf("picked qty not recorded on detail")
	}

	// remainder of the hold was released, nothing stays Active
	var activeHolds int64
	db.Model(&models.Reservation{}).
		Where("order_kind = ? AND order_id = ? AND status = ?",
			models.OrderKindOutbound, outbound.ID, models.ReservationStatusActive).
		Count(&activeHolds)
	if activeHolds != 0 {
		t.Errorf("active holds after posting: got %d, want 0", activeHolds)
	}

	// conservation: 30 received - 12 issued = 18 on hand, all available
	var totalOnHand decimal.Decimal
	db.Model(&models.StockLine{}).Where("product_id = ?", product.ID).
		Select("COALESCE(SUM(on_hand_qty), 0)").Scan(&totalOnHand)
	if !totalOnHand.Equal(decimal.NewFromInt(18)) {
		t.Errorf("on hand after posting: got %s, want 18", totalOnHand)
	}
	available, _ = models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if !available.Equal(decimal.NewFromInt(18)) {
		t.Errorf("available after posting: got %s, want 18", available)
	}

	var outSum decimal.Decimal
	db.Model(&models.StockMovement{}).
		Where("product_id = ? AND type = ?", product.ID, models.MovementTypeOut).
		Select("COALESCE(SUM(change_qty), 0)").Scan(&outSum)
	if !outSum.Equal(decimal.NewFromInt(-12)) {
		t.Errorf("OUT movement sum: got %s, want -12", outSum)
	}

	// three lines where the middle one over-asks: all-or-nothing means
	// lines 1 and 3 must not stay partially reserved either
	over, err := models.CreateOutbound(ctx, &models.NewOutbound{
		WarehouseId: warehouse.ID,
		Details: []models.NewOutboundDetail{
			{ProductId: product.ID, ApplyQty: decimal.NewFromInt(2)},
			{ProductId: product.ID, ApplyQty: decimal.NewFromInt(1000)},
			{ProductId: product.ID, ApplyQty: decimal.NewFromInt(3)},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateOutbound over: %v", err)
	}
	mustTransitionOutbound(t, ctx, over.ID, models.OrderStatusPending, 1)
	mustTransitionOutbound(t, ctx, over.ID, models.OrderStatusApproved, 2)
	_, err = models.TransitionOutbound(ctx, over.ID, models.OrderStatusPicking, 2, nil)
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	refetched, err := models.GetOutbound(ctx, over.ID)
	if err != nil {
		t.Fatalf("GetOutbound: %v", err)
	}
	if refetched.Status != models.OrderStatusApproved {
		t.Errorf("failed picking must not change status, got %s", refetched.Status)
	}
	db.Model(&models.Reservation{}).
		Where("order_kind = ? AND order_id = ?", models.OrderKindOutbound, over.ID).
		Count(&activeHolds)
	if activeHolds != 0 {
		t.Errorf("failed picking left %d reservations", activeHolds)
	}
	var reservedSum decimal.Decimal
	db.Model(&models.StockLine{}).Where("product_id = ?", product.ID).
		Select("COALESCE(SUM(reserved_qty), 0)").Scan(&reservedSum)
	if !reservedSum.IsZero() {
		t.Errorf("failed picking left %s reserved on the ledger", reservedSum)
	}

	// cancelling from Picking releases the holds
	cancelMe, err := models.CreateOutbound(ctx, &models.NewOutbound{
		WarehouseId: warehouse.ID,
		Details: []models.NewOutboundDetail{
			{ProductId: product.ID, ApplyQty: decimal.NewFromInt(5)},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateOutbound cancelMe: %v", err)
	}
	mustTransitionOutbound(t, ctx, cancelMe.ID, models.OrderStatusPending, 1)
	mustTransitionOutbound(t, ctx, cancelMe.ID, models.OrderStatusApproved, 2)
	mustTransitionOutbound(t, ctx, cancelMe.ID, models.OrderStatusPicking, 2)
	available, _ = models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if !available.Equal(decimal.NewFromInt(13)) {
		t.Errorf("available with hold: got %s, want 13", available)
	}
	mustTransitionOutbound(t, ctx, cancelMe.ID, models.OrderStatusCancelled, 2)
	available, _ = models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if !available.Equal(decimal.NewFromInt(18)) {
		t.Errorf("available after cancel: got %s, want 18", available)
	}

	// releasing an already-released hold is a no-op
	var released models.Reservation
	if err := db.Where("order_kind = ? AND order_id = ?",
		models.OrderKindOutbound, cancelMe.ID).First(&released).Error; err != nil {
		t.Fatalf("fetch released reservation: %v", err)
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		return models.ReleaseReservation(tx, ctx, released.ID)
	}); err != nil {
		t.Fatalf("double release: %v", err)
	}
	available, _ = models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if !available.Equal(decimal.NewFromInt(18)) {
		t.Errorf("double release moved stock: got %s, want 18", available)
	}

	// conservation held throughout: on-hand only ever moved via IN/OUT
	var changeSum decimal.Decimal
	db.Model(&models.StockMovement{}).Where("product_id = ?", product.ID).
		Select("COALESCE(SUM(change_qty), 0)").Scan(&changeSum)
	if !changeSum.Equal(totalOnHand) {
		t.Errorf("journal sum %s != on hand %s", changeSum, totalOnHand)
	}
}

// Stocktake snapshot, counting, difference posting, and the stale
// snapshot guard when stock moves mid-count.
func TestInventoryCheckAdjustsAndDetectsDrift(t *testing.T) {
	ctx := setupIntegration(t)

	warehouse, product := seedCatalog(t, ctx, "KB-1")

	inbound, err := models.CreateInbound(ctx, &models.NewInbound{
		WarehouseId: warehouse.ID,
		Details: []models.NewInboundDetail{
			{ProductId: product.ID, ActualQty: decimal.NewFromInt(50), BatchNo: "B1"},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateInbound: %v", err)
	}
	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusPending, 1)
	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusApproved, 2)
	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusPosted, 2)

	check, err := models.CreateInventoryCheck(ctx, &models.NewInventoryCheck{WarehouseId: warehouse.ID}, 3)
	if err != nil {
		t.Fatalf("CreateInventoryCheck: %v", err)
	}
	check, err = models.TransitionInventoryCheck(ctx, check.ID, models.OrderStatusChecking, 3)
	if err != nil {
		t.Fatalf("start counting: %v", err)
	}
	if len(check.Details) != 1 || !check.Details[0].SystemQty.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("snapshot: got %+v", check.Details)
	}

	// counted 47: shrinkage of 3
	check, err = models.RecordCheckCounts(ctx, check.ID, []models.CheckCount{
		{DetailId: check.Details[0].ID, ActualQty: decimal.NewFromInt(47)},
	})
	if err != nil {
		t.Fatalf("RecordCheckCounts: %v", err)
	}
	if !check.Details[0].DifferenceQty.Equal(decimal.NewFromInt(-3)) {
		t.Errorf("difference: got %s, want -3", check.Details[0].DifferenceQty)
	}

	// completing without a count is rejected on a second stocktake path,
	// but first: complete this one and verify the adjustment posted
	if _, err := models.TransitionInventoryCheck(ctx, check.ID, models.OrderStatusCompleted, 3); err != nil {
		t.Fatalf("complete stocktake: %v", err)
	}

	db := config.GetDB()
	available, err := models.GetAvailable(ctx, db, product.ID, warehouse.ID, nil, nil)
	if err != nil {
		t.Fatalf("GetAvailable: %v", err)
	}
	if !available.Equal(decimal.NewFromInt(47)) {
		t.Errorf("available after stocktake: got %s, want 47", available)
	}
	var checkMoves int64
	db.Model(&models.StockMovement{}).
		Where("product_id = ? AND type = ?", product.ID, models.MovementTypeCheck).
		Count(&checkMoves)
	if checkMoves != 1 {
		t.Errorf("CHECK movements: got %d, want 1", checkMoves)
	}

	// second stocktake: stock moves after the snapshot, completion must
	// refuse to post a stale difference
	stale, err := models.CreateInventoryCheck(ctx, &models.NewInventoryCheck{WarehouseId: warehouse.ID}, 3)
	if err != nil {
		t.Fatalf("CreateInventoryCheck stale: %v", err)
	}
	stale, err = models.TransitionInventoryCheck(ctx, stale.ID, models.OrderStatusChecking, 3)
	if err != nil {
		t.Fatalf("start stale counting: %v", err)
	}
	stale, err = models.RecordCheckCounts(ctx, stale.ID, []models.CheckCount{
		{DetailId: stale.Details[0].ID, ActualQty: decimal.NewFromInt(47)},
	})
	if err != nil {
		t.Fatalf("RecordCheckCounts stale: %v", err)
	}

	drift, err := models.CreateInbound(ctx, &models.NewInbound{
		WarehouseId: warehouse.ID,
		Details: []models.NewInboundDetail{
			{ProductId: product.ID, ActualQty: decimal.NewFromInt(5), BatchNo: "B1"},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateInbound drift: %v", err)
	}
	mustTransitionInbound(t, ctx, drift.ID, models.OrderStatusPending, 1)
	mustTransitionInbound(t, ctx, drift.ID, models.OrderStatusApproved, 2)
	mustTransitionInbound(t, ctx, drift.ID, models.OrderStatusPosted, 2)

	_, err = models.TransitionInventoryCheck(ctx, stale.ID, models.OrderStatusCompleted, 3)
	if !errors.Is(err, models.ErrConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}
	refetched, err := models.GetInventoryCheck(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetInventoryCheck: %v", err)
	}
	if refetched.Status != models.OrderStatusChecking {
		t.Errorf("stale completion must not change status, got %s", refetched.Status)
	}
}

// Procurement approval guards and the prefill handoff into inbound.
func TestProcurementApprovalAndPrefill(t *testing.T) {
	ctx := setupIntegration(t)

	warehouse, product := seedCatalog(t, ctx, "CABLE-1")
	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Acme Parts"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	procurement, err := models.CreateProcurement(ctx, &models.NewProcurement{
		SupplierId: supplier.ID,
		Reason:     "restock",
		Details: []models.NewProcurementDetail{
			{ProductId: product.ID, PlanQty: decimal.NewFromInt(100), UnitPrice: decimal.NewFromFloat(2.5)},
		},
	}, 1)
	if err != nil {
		t.Fatalf("CreateProcurement: %v", err)
	}
	if !procurement.TotalAmount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("total amount: got %s, want 250", procurement.TotalAmount)
	}

	if _, err := models.TransitionProcurement(ctx, procurement.ID, models.OrderStatusPending, 1); err != nil {
		t.Fatalf("submit procurement: %v", err)
	}

	// approval needs an approver identity
	_, err = models.TransitionProcurement(ctx, procurement.ID, models.OrderStatusApproved, 0)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error for missing approver, got %v", err)
	}

	approved, err := models.TransitionProcurement(ctx, procurement.ID, models.OrderStatusApproved, 2)
	if err != nil {
		t.Fatalf("approve procurement: %v", err)
	}
	if approved.ApproverId == nil || *approved.ApproverId != 2 || approved.ApprovedAt == nil {
		t.Errorf("approval metadata not recorded: %+v", approved)
	}

	prefill, err := models.PrefillInboundFromProcurement(ctx, procurement.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("PrefillInboundFromProcurement: %v", err)
	}
	if prefill.SourceId == nil || *prefill.SourceId != procurement.ID {
		t.Errorf("prefill should back-reference the procurement")
	}
	if len(prefill.Details) != 1 || !prefill.Details[0].ActualQty.Equal(decimal.NewFromInt(100)) {
		t.Errorf("prefill lines: got %+v", prefill.Details)
	}

	// over-receipt against the plan is allowed
	prefill.Details[0].ActualQty = decimal.NewFromInt(110)
	inbound, err := models.CreateInbound(ctx, prefill, 1)
	if err != nil {
		t.Fatalf("CreateInbound from prefill: %v", err)
	}
	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusPending, 1)
	mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusApproved, 2)
	posted := mustTransitionInbound(t, ctx, inbound.ID, models.OrderStatusPosted, 2)
	if !posted.TotalQuantity.Equal(decimal.NewFromInt(110)) {
		t.Errorf("over-receipt total: got %s, want 110", posted.TotalQuantity)
	}
}

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "wms_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	return ctx
}

func seedCatalog(t *testing.T, ctx context.Context, sku string) (*models.Warehouse, *models.Product) {
	t.Helper()
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main " + sku})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	category, err := models.CreateCategory(ctx, &models.NewCategory{Name: "Hardware " + sku})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		CategoryId:     category.ID,
		SkuCode:        sku,
		Name:           "Product " + sku,
		Unit:           "pcs",
		AlertThreshold: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return warehouse, product
}

func mustTransitionInbound(t *testing.T, ctx context.Context, id int64, target models.OrderStatus, actorId int64) *models.Inbound {
	t.Helper()
	inbound, err := models.TransitionInbound(ctx, id, target, actorId)
	if err != nil {
		t.Fatalf("inbound -> %s: %v", target, err)
	}
	return inbound
}

func mustTransitionOutbound(t *testing.T, ctx context.Context, id int64, target models.OrderStatus, actorId int64) *models.Outbound {
	t.Helper()
	outbound, err := models.TransitionOutbound(ctx, id, target, actorId, nil)
	if err != nil {
		t.Fatalf("outbound -> %s: %v", target, err)
	}
	return outbound
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("wms-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("wms-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=wms_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
