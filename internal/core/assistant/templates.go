package assistant

const healthyDiseaseTemplate = `Dựa trên phân tích, cây của bạn có vẻ khỏe mạnh và không có dấu hiệu bệnh rõ ràng. Tuy nhiên, hãy chú ý đến các dấu hiệu sau:

🌱 **Dấu hiệu cây khỏe mạnh:**
- Lá xanh tươi, không có đốm vàng hoặc nâu
- Thân cây cứng cáp, không bị mềm
- Rễ phát triển tốt
- Cây phát triển đều đặn

🔍 **Cần theo dõi:**
- Thay đổi màu sắc lá
- Lá rụng bất thường
- Đốm đen hoặc trắng trên lá
- Thân cây bị thối

Bạn có thể chia sẻ thêm thông tin về tình trạng cụ thể của cây không?`

const healthyTreatmentTemplate = `Cây của bạn hiện tại khỏe mạnh! Để duy trì sức khỏe tốt, hãy:

🌿 **Chăm sóc phòng bệnh:**
- Tưới nước đều đặn, không để úng nước
- Đảm bảo ánh sáng phù hợp
- Bón phân định kỳ
- Kiểm tra sâu bệnh thường xuyên
- Cắt tỉa lá già, bệnh

🌱 **Dinh dưỡng:**
- Sử dụng phân hữu cơ
- Bổ sung vi lượng khi cần
- Không bón quá nhiều phân

Bạn có cần tư vấn về cách chăm sóc cụ thể cho loại cây này không?`

const genericTreatmentSteps = `1. Cách ly cây bệnh khỏi cây khỏe
2. Cắt bỏ phần bị bệnh
3. Sử dụng thuốc trừ bệnh phù hợp
4. Cải thiện điều kiện môi trường
`

// %s: plant name
const careTemplate = `🌱 **Hướng dẫn chăm sóc %s:**

💧 **Tưới nước:**
- Tưới khi đất khô 2-3cm bề mặt
- Không để úng nước
- Tưới vào sáng sớm hoặc chiều tối
- Sử dụng nước sạch, không có clo

☀️ **Ánh sáng:**
- Đặt cây ở nơi có ánh sáng gián tiếp
- Tránh ánh nắng trực tiếp mạnh
- Xoay chậu định kỳ để cây phát triển đều

🌡️ **Nhiệt độ:**
- Nhiệt độ lý tưởng: 18-25°C
- Tránh nhiệt độ quá cao hoặc quá thấp
- Bảo vệ khỏi gió lạnh

🌿 **Dinh dưỡng:**
- Bón phân 2-4 tuần/lần trong mùa sinh trưởng
- Giảm bón phân vào mùa đông
- Sử dụng phân hữu cơ hoặc phân bón chậm tan

🔄 **Cắt tỉa:**
- Loại bỏ lá già, bệnh
- Cắt tỉa để tạo hình dáng đẹp
- Khử trùng dụng cụ cắt tỉa

Bạn có cần tư vấn thêm về khía cạnh nào không?`

const noWeatherTemplate = `🌤️ **Thông tin thời tiết:**

Hiện tại tôi không có thông tin thời tiết cho vị trí của bạn. Để có thông tin chính xác:

1. **Bật định vị** khi phân tích cây
2. **Kiểm tra thời tiết** tại địa phương
3. **Điều chỉnh chăm sóc** theo điều kiện thời tiết

**Lưu ý chung:**
- Tưới nhiều hơn khi trời nóng, khô
- Giảm tưới khi trời mưa, ẩm
- Bảo vệ cây khỏi gió mạnh
- Che chắn khi nhiệt độ quá cao/thấp`

// location, temperature, humidity, description, advice
const weatherTemplate = `🌤️ **Thời tiết hiện tại tại %s:**

🌡️ **Nhiệt độ:** %s°C
💧 **Độ ẩm:** %s%%
☁️ **Thời tiết:** %s

💡 **Khuyến nghị chăm sóc:**
%s`

const fertilizerTemplate = `🌿 **Hướng dẫn bón phân cho %s:**

📅 **Lịch bón phân:**
- **Mùa xuân-hè:** Bón 2-4 tuần/lần
- **Mùa thu:** Giảm xuống 4-6 tuần/lần
- **Mùa đông:** Ngừng bón hoặc bón rất ít

🌱 **Loại phân phù hợp:**
- **Phân hữu cơ:** Phân chuồng, phân trùn quế
- **Phân NPK:** 20-20-20 cho cây lá, 10-30-20 cho cây hoa
- **Phân vi lượng:** Bổ sung khi cần

⚖️ **Liều lượng:**
- Tuân theo hướng dẫn trên bao bì
- Bón ít hơn khuyến nghị 20-30%%
- Không bón phân khi cây bị bệnh

💧 **Cách bón:**
- Tưới nước trước khi bón
- Rải phân đều quanh gốc
- Tưới nước sau khi bón
- Tránh để phân dính vào lá

⚠️ **Lưu ý:**
- Không bón phân quá liều
- Ngừng bón khi cây có dấu hiệu bất thường
- Sử dụng phân chất lượng tốt`

const wateringTemplate = `💧 **Hướng dẫn tưới nước cho %s:**

⏰ **Tần suất tưới:**
- **Mùa hè:** 1-2 lần/ngày
- **Mùa xuân/thu:** 2-3 lần/tuần
- **Mùa đông:** 1-2 lần/tuần

🌡️ **Điều kiện tưới:**
- Kiểm tra độ ẩm đất trước khi tưới
- Tưới khi đất khô 2-3cm bề mặt
- Không tưới khi đất còn ẩm

💧 **Lượng nước:**
- Tưới đủ ẩm, không úng nước
- Nước chảy ra lỗ thoát nước
- Để ráo nước hoàn toàn

⏰ **Thời gian tưới:**
- **Sáng sớm:** 6-8h (tốt nhất)
- **Chiều tối:** 17-19h
- Tránh tưới giữa trưa nắng

🌱 **Cách tưới:**
- Tưới vào gốc, tránh lá
- Sử dụng bình tưới có vòi nhỏ
- Tưới từ từ, đều đặn

⚠️ **Lưu ý:**
- Không tưới quá nhiều gây úng rễ
- Điều chỉnh theo điều kiện thời tiết
- Quan sát phản ứng của cây`

const defaultTemplate = `🌱 **Xin chào! Tôi là AI Assistant chuyên về cây trồng.**

Tôi có thể giúp bạn với các vấn đề về %s:

🔍 **Phân tích bệnh:** Hỏi về bệnh và triệu chứng
💊 **Điều trị:** Hướng dẫn cách chữa bệnh
🌿 **Chăm sóc:** Tư vấn nuôi trồng
🌤️ **Thời tiết:** Ảnh hưởng thời tiết
🌱 **Phân bón:** Hướng dẫn bón phân
💧 **Tưới nước:** Kỹ thuật tưới nước

Bạn muốn tư vấn về vấn đề gì? Hãy đặt câu hỏi cụ thể để tôi có thể giúp bạn tốt nhất!`
